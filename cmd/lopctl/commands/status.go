package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <ref>",
		Short: "Show an order's remaining amount, invalidation and predicate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			so, err := loadOrder(ctx, args[0])
			if err != nil {
				return err
			}
			hash, err := so.Hash()
			if err != nil {
				return err
			}

			sess, err := connect(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()
			if sess.ChainID.Int64() != so.ChainID {
				return fmt.Errorf("order is for chain %d, RPC is chain %s", so.ChainID, sess.ChainID)
			}

			router := lop.NewContract(so.Router, sess.Client)
			st, err := router.Status(ctx, so.Order, hash, time.Now().Unix())
			if err != nil {
				return err
			}
			predicate, err := router.CheckPredicate(ctx, so.Extension.Predicate)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "hash:        %s\n", hash.Hex())
			fmt.Fprintf(w, "remaining:   %s / %s\n", st.Remaining, so.Order.MakingAmount)
			fmt.Fprintf(w, "invalidated: %v\n", st.Invalidated)
			fmt.Fprintf(w, "expired:     %v\n", st.Expired)
			fmt.Fprintf(w, "predicate:   %v\n", predicate)
			fmt.Fprintf(w, "fillable:    %v\n", st.Fillable() && predicate)
			return nil
		},
	}
}
