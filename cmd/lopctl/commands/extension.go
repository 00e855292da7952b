package commands

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
)

func extensionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extension",
		Short: "Work with encoded order extensions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <hex>",
		Short: "Split an encoded extension into its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := hexutil.Decode(args[0])
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			ext, err := lop.DecodeExtension(b)
			if err != nil {
				return err
			}
			h, err := ext.Hash()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\n", h.Hex())
			describeExtension(cmd.OutOrStdout(), ext)
			return nil
		},
	})
	return cmd
}

func describeExtension(w io.Writer, ext lop.Extension) {
	fields := []struct {
		name string
		data []byte
	}{
		{"maker_asset_suffix", ext.MakerAssetSuffix},
		{"taker_asset_suffix", ext.TakerAssetSuffix},
		{"making_amount_data", ext.MakingAmountData},
		{"taking_amount_data", ext.TakingAmountData},
		{"predicate", ext.Predicate},
		{"maker_permit", ext.MakerPermit},
		{"pre_interaction", ext.PreInteraction},
		{"post_interaction", ext.PostInteraction},
		{"custom_data", ext.CustomData},
	}
	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-19s %s\n", f.name+":", hexutil.Encode(f.data))
	}
}
