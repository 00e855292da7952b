package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshkas4na/VolatilityProtection/internal/chain"
	"github.com/harshkas4na/VolatilityProtection/internal/hedge"
	"github.com/harshkas4na/VolatilityProtection/internal/journal"
)

func cancelCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "cancel <ref>",
		Short: "Cancel an order on-chain (maker only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			so, err := loadOrder(ctx, args[0])
			if err != nil {
				return err
			}

			sess, err := chain.ConnectWithKey(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			j := journal.New(cfg.JournalPath)
			defer j.Close()

			flow, err := sess.Flow(so.Router, j, store, hedge.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			receipt, err := flow.Cancel(ctx, so)
			if err != nil {
				return err
			}
			if receipt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled: %s\n", receipt.TxHash.Hex())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the cancel calldata instead of sending")
	return cmd
}
