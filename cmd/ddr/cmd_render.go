package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joelkehle/ddr-generator/internal/ddr"
	"github.com/joelkehle/ddr-generator/internal/generator"
)

func newRenderCmd() *cobra.Command {
	var input, output, jsonOutput string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Rebuild report markdown from a saved envelope JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			env, err := generator.DecodeEnvelope(in)
			if err != nil {
				return err
			}
			env.ReportMarkdown = ddr.RenderMarkdown(env.Report, env.Meta())
			if err := writeOutput(cmd.OutOrStdout(), output, []byte(env.ReportMarkdown)); err != nil {
				return fmt.Errorf("write markdown: %w", err)
			}
			if jsonOutput == "" {
				return nil
			}
			b, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(jsonOutput, b, 0o644); err != nil {
				return fmt.Errorf("write json output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Saved report envelope JSON")
	cmd.Flags().StringVar(&output, "output", "", "Write rebuilt markdown here (defaults to stdout)")
	cmd.Flags().StringVar(&jsonOutput, "json-output", "", "Optional path for the rebuilt envelope JSON")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
