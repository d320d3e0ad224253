package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"digistore/internal/models"
	"digistore/internal/service"
	"digistore/internal/store"
)

func (e *env) catalog() *service.CatalogService {
	return service.NewCatalogService(e.logger, store.NewProductRepository(e.records))
}

func seedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the starter catalog if no products exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			seeded, err := e.catalog().Seed(cmd.Context())
			if err != nil {
				return err
			}
			if seeded {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog seeded.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog already has products, nothing to do.")
			}
			return nil
		},
	}
}

func productsCmd(e *env) *cobra.Command {
	var (
		category string
		featured bool
		search   string
	)

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List catalog products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := service.ProductFilter{Category: models.Category(category), Featured: featured, Query: search}
			products, err := e.catalog().List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tFEATURED")
			for _, p := range products {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", p.ID, p.Name, p.Category, p.Price.StringFixed(2), p.Featured)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list products in this category")
	cmd.Flags().BoolVarP(&featured, "featured", "f", false, "Only list featured products")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Match name, description or tags")

	return cmd
}
