package main

import (
	"encoding/hex"
	"fmt"

	"github.com/joshuapare/dockv/docdb"
	"github.com/spf13/cobra"
)

var decodeKeyNoTime bool

func init() {
	cmd := newDecodeKeyCmd()
	cmd.Flags().BoolVar(&decodeKeyNoTime, "no-time", false,
		"Treat the input as a user key without a hybrid time suffix")
	rootCmd.AddCommand(cmd)
}

func newDecodeKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-key <hex>",
		Short: "Decode an encoded record key",
		Long: `The decode-key command renders a hex-encoded record key: the DocKey,
any subkeys, and the hybrid time suffix.

Example:
  dockvctl decode-key 49800000000000002a21 --no-time`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecodeKey(args[0])
		},
	}
}

func runDecodeKey(arg string) error {
	raw, err := hex.DecodeString(arg)
	if err != nil {
		return fmt.Errorf("invalid hex input: %w", err)
	}
	printVerbose("Decoding %d key bytes\n", len(raw))

	var rendered string
	if decodeKeyNoTime {
		rendered, err = docdb.FormatUserKey(raw)
	} else {
		rendered, err = docdb.FormatRecordKey(raw)
	}
	if err != nil {
		return fmt.Errorf("failed to decode key: %w", err)
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
