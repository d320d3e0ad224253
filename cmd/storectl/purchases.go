package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"digistore/internal/models"
	"digistore/internal/store"
)

func purchasesCmd(e *env) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "purchases",
		Short: "List recorded purchases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := store.NewPurchaseRepository(e.records)

			var (
				purchases []models.Purchase
				err       error
			)
			if email != "" {
				purchases, err = repo.ByEmail(cmd.Context(), email)
			} else {
				purchases, err = repo.All(cmd.Context())
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSESSION\tEMAIL\tITEMS\tTOTAL\tSTATUS\tCREATED")
			for _, p := range purchases {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					p.ID, p.SessionID, p.CustomerEmail, len(p.Items),
					p.TotalAmount.StringFixed(2), p.Status, p.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Only list purchases made with this email")

	return cmd
}
