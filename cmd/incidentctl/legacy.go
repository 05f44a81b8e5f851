package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/store-incident-api/internal/legacy"
)

func newLegacyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Legacy report migration tools",
	}

	var in, out string
	transform := &cobra.Command{
		Use:   "transform",
		Short: "Rewrite a legacy report export into the current import shape",
		Long:  `Reads a JSON array of legacy reports and writes a JSON array ready for POST /reports/import. Use "-" for stdin or stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if in != "-" {
				f, err := os.Open(in)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			n, err := legacy.TransformJSON(r, w)
			if err != nil {
				return fmt.Errorf("transform: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "transformed %d reports\n", n)
			return nil
		},
	}
	transform.Flags().StringVar(&in, "in", "-", "Legacy JSON file")
	transform.Flags().StringVar(&out, "out", "-", "Destination file")

	cmd.AddCommand(transform)
	return cmd
}
