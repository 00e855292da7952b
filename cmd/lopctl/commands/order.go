package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
)

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect a signed order",
	}
	cmd.AddCommand(orderHashCmd(), orderShowCmd())
	return cmd
}

func orderHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <ref>",
		Short: "Print the EIP-712 order hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			so, err := loadOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			h, err := so.Hash()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Hex())
			return nil
		},
	}
}

func orderShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Print the order, its traits and extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			so, err := loadOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(so, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			return describeOrder(cmd.OutOrStdout(), so)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the signed order JSON")
	return cmd
}

func describeOrder(w io.Writer, so *lop.SignedOrder) error {
	h, err := so.Hash()
	if err != nil {
		return err
	}
	o := so.Order
	t := o.MakerTraits

	fmt.Fprintf(w, "hash:          %s\n", h.Hex())
	fmt.Fprintf(w, "chain_id:      %d\n", so.ChainID)
	fmt.Fprintf(w, "router:        %s\n", so.Router.Hex())
	fmt.Fprintf(w, "maker:         %s\n", o.Maker.Hex())
	fmt.Fprintf(w, "receiver:      %s\n", o.EffectiveReceiver().Hex())
	fmt.Fprintf(w, "maker_asset:   %s\n", o.MakerAsset.Hex())
	fmt.Fprintf(w, "taker_asset:   %s\n", o.TakerAsset.Hex())
	fmt.Fprintf(w, "making_amount: %s\n", o.MakingAmount)
	fmt.Fprintf(w, "taking_amount: %s\n", o.TakingAmount)
	fmt.Fprintf(w, "salt:          %s\n", o.Salt)
	fmt.Fprintf(w, "maker_traits:  %s\n", hexutil.EncodeBig(t.Big()))
	fmt.Fprintf(w, "  nonce=%d series=%d partial=%v multiple=%v extension=%v bit_invalidator=%v\n",
		t.Nonce(), t.Series(), t.AllowPartialFills(), t.AllowMultipleFills(), t.HasExtension(), t.UseBitInvalidator())
	if exp := t.Expiration(); exp != 0 {
		fmt.Fprintf(w, "  expires=%s\n", time.Unix(int64(exp), 0).UTC().Format(time.RFC3339))
	}
	if err := so.Verify(); err != nil {
		fmt.Fprintf(w, "signature:     INVALID (%v)\n", err)
	} else {
		fmt.Fprintf(w, "signature:     ok (%s)\n", hexutil.Encode(so.Signature))
	}
	if !so.Extension.IsEmpty() {
		fmt.Fprintln(w, "extension:")
		describeExtension(w, so.Extension)
	}
	return nil
}
