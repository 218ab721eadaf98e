package main

import (
	"encoding/hex"
	"fmt"

	"github.com/joshuapare/dockv/docdb"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDecodeValueCmd())
}

func newDecodeValueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-value <hex>",
		Short: "Decode an encoded record value",
		Long: `The decode-value command renders a hex-encoded record value: the
control fields (user timestamp, TTL) and the payload.

Example:
  dockvctl decode-value 53616263`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecodeValue(args[0])
		},
	}
}

func runDecodeValue(arg string) error {
	raw, err := hex.DecodeString(arg)
	if err != nil {
		return fmt.Errorf("invalid hex input: %w", err)
	}
	printVerbose("Decoding %d value bytes\n", len(raw))

	rendered, err := docdb.FormatValue(raw)
	if err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"bytes":   len(raw),
			"decoded": rendered,
		})
	}
	printInfo("%s\n", rendered)
	return nil
}
