package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"digistore/internal/config"
	"digistore/internal/store"
)

var Version = "dev"

// env holds what every subcommand needs. The record store is opened lazily by
// the root command's pre-run hook.
type env struct {
	logger  *logrus.Logger
	cfg     *config.Config
	records store.RecordStore
}

func (e *env) open() error {
	if e.records != nil {
		return nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		e.logger.SetLevel(level)
	}
	records, err := store.Open(cfg.DBDriver, cfg.DBDataSourceName, cfg.DataDir, e.logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	e.cfg = cfg
	e.records = records
	return nil
}

func (e *env) close() error {
	if e.records == nil {
		return nil
	}
	err := e.records.Close()
	e.records = nil
	return err
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:          "storectl",
		Short:        "Administer the digistore catalog, purchases and newsletter",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open()
		},
	}

	root.AddCommand(seedCmd(e))
	root.AddCommand(productsCmd(e))
	root.AddCommand(purchasesCmd(e))
	root.AddCommand(subscribersCmd(e))
	root.AddCommand(accessCmd(e))
	root.AddCommand(cartCmd(e))

	return root
}

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	e := &env{logger: logger}
	err := newRootCmd(e).Execute()
	if cerr := e.close(); cerr != nil {
		logger.Errorf("Error closing record store: %v", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
