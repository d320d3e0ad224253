package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"digistore/internal/mailer"
	"digistore/internal/service"
	"digistore/internal/store"
)

// newsletter never sends mail from the CLI, so the log sender is enough.
func (e *env) newsletter() *service.NewsletterService {
	return service.NewNewsletterService(e.logger, store.NewSubscriberRepository(e.records),
		mailer.NewLogSender(e.logger), e.cfg.EmailFrom, e.cfg.BaseURL)
}

func subscribersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribers",
		Short: "Inspect newsletter subscribers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Write all subscribers as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.newsletter().ExportCSV(cmd.Context(), cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print subscriber statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := e.newsletter().Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	})

	return cmd
}
