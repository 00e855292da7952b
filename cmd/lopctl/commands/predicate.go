package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
)

func predicateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predicate",
		Short: "Evaluate order predicates",
	}
	var routerFlag string
	check := &cobra.Command{
		Use:   "check <ref|0xpredicate>",
		Short: "Evaluate a predicate through the router's checkPredicate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pred, router, err := resolvePredicate(cmd, args[0], routerFlag)
			if err != nil {
				return err
			}
			if len(pred) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no predicate: always true")
				return nil
			}
			sess, err := connect(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			ok, err := lop.NewContract(router, sess.Client).CheckPredicate(ctx, pred)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "predicate: %v\n", ok)
			return nil
		},
	}
	check.Flags().StringVar(&routerFlag, "router", "", "router address for raw predicates (default LOP_ADDRESS)")
	cmd.AddCommand(check)
	return cmd
}

// resolvePredicate accepts raw predicate bytes or an order reference. Orders
// are checked against the router they were signed for.
func resolvePredicate(cmd *cobra.Command, arg, routerFlag string) ([]byte, common.Address, error) {
	if _, statErr := os.Stat(arg); statErr != nil {
		// Anything that decodes as hex but is not a 32-byte order hash is a
		// raw predicate.
		if b, err := hexutil.Decode(strings.TrimSpace(arg)); err == nil && len(b) != common.HashLength {
			router, err := cfg.LOP()
			if err != nil {
				return nil, common.Address{}, err
			}
			if routerFlag != "" {
				if !common.IsHexAddress(routerFlag) {
					return nil, common.Address{}, fmt.Errorf("invalid --router %q", routerFlag)
				}
				router = common.HexToAddress(routerFlag)
			}
			return b, router, nil
		}
	}
	so, err := loadOrder(cmd.Context(), arg)
	if err != nil {
		return nil, common.Address{}, err
	}
	return so.Extension.Predicate, so.Router, nil
}
