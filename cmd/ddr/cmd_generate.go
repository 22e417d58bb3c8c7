package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ddr-generator/internal/generator"
	"github.com/joelkehle/ddr-generator/internal/render"
)

type generateOptions struct {
	inspection string
	thermal    string
	out        string
	jsonOut    string
	pdfOut     string
	noStore    bool
}

func newGenerateCmd(a *app) *cobra.Command {
	var o generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report from an inspection and a thermal document",
		Example: `  ddr generate --inspection site.pdf --thermal thermal.pdf --out report.md
  ddr generate --inspection notes.txt --thermal scan.csv --json report.json --no-store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, a, o)
		},
	}
	cmd.Flags().StringVar(&o.inspection, "inspection", "", "Inspection report document")
	cmd.Flags().StringVar(&o.thermal, "thermal", "", "Thermal imaging report document")
	cmd.Flags().StringVar(&o.out, "out", "", "Write report markdown here (defaults to stdout)")
	cmd.Flags().StringVar(&o.jsonOut, "json", "", "Also write the report envelope JSON here")
	cmd.Flags().StringVar(&o.pdfOut, "pdf", "", "Also render the report PDF here")
	cmd.Flags().BoolVar(&o.noStore, "no-store", false, "Skip the history database and artifact directory")
	_ = cmd.MarkFlagRequired("inspection")
	_ = cmd.MarkFlagRequired("thermal")
	return cmd
}

func runGenerate(cmd *cobra.Command, a *app, o generateOptions) error {
	gen, cleanup, err := a.newGenerator(!o.noStore)
	if err != nil {
		return err
	}
	defer cleanup()

	env, err := gen.Generate(cmd.Context(), generator.Request{
		InspectionPath: o.inspection,
		ThermalPath:    o.thermal,
		SkipPDF:        o.pdfOut != "",
	})
	if err != nil {
		if stage := generator.StageNameFromError(err); stage != "" {
			return fmt.Errorf("generate report (%s stage): %w", stage, err)
		}
		return fmt.Errorf("generate report: %w", err)
	}
	for _, note := range env.IngestionNotes {
		a.logger.Info("ingestion note", zap.String("report_id", env.ID), zap.String("note", note))
	}

	if err := writeOutput(cmd.OutOrStdout(), o.out, []byte(env.ReportMarkdown)); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	if o.jsonOut != "" {
		blob, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.jsonOut, blob, 0o644); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}
	if o.pdfOut != "" {
		blob, err := json.Marshal(env)
		if err != nil {
			return err
		}
		pdf, err := render.NewChromiumPDFRenderer(a.cfg.WebDir).Render(cmd.Context(), string(blob))
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		if err := os.WriteFile(o.pdfOut, pdf, 0o644); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
	}
	if o.out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "report %s written to %s (severity %s)\n",
			env.ID, o.out, env.Report.SeverityAssessment.Level)
	}
	return nil
}
