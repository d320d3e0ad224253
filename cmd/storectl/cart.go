package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"digistore/internal/cart"
)

// fileStorage persists cart.Storage keys as one JSON object on disk.
type fileStorage struct {
	path string
}

func (s fileStorage) load() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("corrupted cart file %s: %w", s.path, err)
	}
	return values, nil
}

func (s fileStorage) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s fileStorage) Get(key string) (string, bool, error) {
	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s fileStorage) Set(key, value string) error {
	values, err := s.load()
	if err != nil {
		values = map[string]string{}
	}
	values[key] = value
	return s.save(values)
}

func (s fileStorage) Remove(key string) error {
	values, err := s.load()
	if err != nil {
		return os.Remove(s.path)
	}
	delete(values, key)
	return s.save(values)
}

func (e *env) cartStore() (*cart.Store, error) {
	if err := os.MkdirAll(e.cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return cart.NewStore(e.logger, fileStorage{path: filepath.Join(e.cfg.DataDir, "cart.json")}), nil
}

func printCart(cmd *cobra.Command, c cart.Cart) error {
	out := cmd.OutOrStdout()
	if len(c.Items) == 0 {
		fmt.Fprintln(out, "Cart is empty.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE")
	for _, item := range c.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", item.Product.ID, item.Product.Name, item.Quantity, item.Product.Price.StringFixed(2))
	}
	fmt.Fprintf(w, "\t\t%d\t%s\n", c.ItemCount, c.Total.StringFixed(2))
	return w.Flush()
}

func cartCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Build a local cart against the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.cartStore()
			if err != nil {
				return err
			}
			return printCart(cmd, s.State())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [productId] [quantity]",
		Short: "Add a product, merging with an existing line",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity := 1
			if len(args) == 2 {
				q, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				quantity = q
			}
			product, err := e.catalog().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s, err := e.cartStore()
			if err != nil {
				return err
			}
			return printCart(cmd, s.Dispatch(cart.Add(*product, quantity)))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [productId] [quantity]",
		Short: "Set a line's quantity; zero or less removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			s, err := e.cartStore()
			if err != nil {
				return err
			}
			return printCart(cmd, s.Dispatch(cart.UpdateQuantity(args[0], q)))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [productId]",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.cartStore()
			if err != nil {
				return err
			}
			return printCart(cmd, s.Dispatch(cart.Remove(args[0])))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.cartStore()
			if err != nil {
				return err
			}
			return printCart(cmd, s.Dispatch(cart.Clear()))
		},
	})

	return cmd
}
