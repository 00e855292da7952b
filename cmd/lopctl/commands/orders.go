package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/harshkas4na/VolatilityProtection/internal/orderfile"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
)

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Browse the order store",
	}
	cmd.AddCommand(ordersListCmd(), ordersExportCmd())
	return cmd
}

func ordersListCmd() *cobra.Command {
	var (
		statusFlag string
		makerFlag  string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status orderstore.Status
			if strings.TrimSpace(statusFlag) != "" {
				st, err := orderstore.ParseStatus(statusFlag)
				if err != nil {
					return err
				}
				status = st
			}
			var maker common.Address
			if strings.TrimSpace(makerFlag) != "" {
				if !common.IsHexAddress(makerFlag) {
					return fmt.Errorf("invalid --maker %q", makerFlag)
				}
				maker = common.HexToAddress(makerFlag)
			}
			return listOrders(cmd.Context(), cmd.OutOrStdout(), status, maker, limit)
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "pending, filled, cancelled or failed (default all)")
	cmd.Flags().StringVar(&makerFlag, "maker", "", "only orders from this maker")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows (0 = no limit)")
	return cmd
}

func listOrders(ctx context.Context, out io.Writer, status orderstore.Status, maker common.Address, limit int) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	filter := orderstore.Filter{Status: status, Limit: limit}
	if (maker != common.Address{}) {
		filter.Makers = []common.Address{maker}
	}
	recs, err := store.List(ctx, filter)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tKIND\tSTATUS\tMAKER\tMAKING\tTAKING\tATTEMPTS\tCREATED")
	for _, r := range recs {
		o := r.Order.Order
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Hash.Hex(), r.Kind, r.Status, o.Maker.Hex(), o.MakingAmount, o.TakingAmount,
			r.Attempts, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func ordersExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <hash> <file>",
		Short: "Write a stored order to a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			rec, err := store.Get(cmd.Context(), hash)
			if err != nil {
				return err
			}
			if err := orderfile.Save(args[1], rec.Order); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}
}
