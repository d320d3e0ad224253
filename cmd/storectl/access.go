package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"digistore/internal/service"
	"digistore/internal/sourcehost"
	"digistore/internal/store"
)

func accessCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Inspect repository access",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [productId] [githubUsername]",
		Short: "Show the permission a GitHub user holds on a product's repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.GitHubToken == "" {
				e.logger.Warn("GITHUB_TOKEN not set, private repositories will report no access")
			}
			access := service.NewAccessService(e.logger,
				store.NewProductRepository(e.records),
				store.NewPurchaseRepository(e.records),
				sourcehost.NewGitHubClient(e.cfg.GitHubToken),
				store.NewMemoryRateLimiter(5, time.Hour))

			level, err := access.CheckPermission(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[1], level)
			return nil
		},
	})

	return cmd
}
