package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nota/internal/core"
	"nota/internal/storage"
)

type addOptions struct {
	store string
	date  string
	items []string
}

func newAddCmd(factory appFactory) *cobra.Command {
	opts := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a receipt typed on the command line",
		Long: `Add a receipt typed on the command line. Each --item is "name:category:quantity:unit_price";
the category may be empty and the line total is quantity times unit price.`,
		Example: `  notactl add --store Indomaret --date 2025-03-14 --item "Aqua 600ml:Food & Drink:2:3500"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := opts.receipt()
			if err != nil {
				return err
			}

			a, err := factory(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.receipts.RecordReceipt(cmd.Context(), storage.SourceCLI, rec)
			fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			if !out.OK {
				return errFailures
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.store, "store", "s", "", "Store name")
	cmd.Flags().StringVarP(&opts.date, "date", "d", "", "Receipt date (YYYY-MM-DD, default today)")
	cmd.Flags().StringArrayVarP(&opts.items, "item", "i", nil, `Line item "name:category:quantity:unit_price" (repeatable)`)
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

func (o *addOptions) receipt() (core.Receipt, error) {
	rec := core.Receipt{Store: strings.TrimSpace(o.store), Date: strings.TrimSpace(o.date)}
	for _, raw := range o.items {
		it, err := parseItem(raw)
		if err != nil {
			return core.Receipt{}, err
		}
		rec.Items = append(rec.Items, it)
	}
	return rec, nil
}

// parseItem reads "name:category:quantity:unit_price". The name may itself
// contain colons; the last three fields never do.
func parseItem(raw string) (core.LineItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return core.LineItem{}, fmt.Errorf("item %q: want name:category:quantity:unit_price", raw)
	}
	n := len(parts)
	qty, err := strconv.ParseInt(strings.TrimSpace(parts[n-2]), 10, 64)
	if err != nil {
		return core.LineItem{}, fmt.Errorf("item %q: invalid quantity: %w", raw, err)
	}
	price, err := core.ParseRupiah(parts[n-1])
	if err != nil {
		return core.LineItem{}, fmt.Errorf("item %q: invalid unit price: %w", raw, err)
	}
	total, err := core.LineTotalFor(qty, price)
	if err != nil {
		return core.LineItem{}, fmt.Errorf("item %q: %w", raw, err)
	}
	return core.LineItem{
		Name:      strings.TrimSpace(strings.Join(parts[:n-3], ":")),
		Category:  strings.TrimSpace(parts[n-3]),
		Quantity:  core.Amount(qty),
		UnitPrice: core.Amount(price),
		LineTotal: core.Amount(total),
	}, nil
}
