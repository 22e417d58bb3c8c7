package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ddr-generator/internal/config"
	"github.com/joelkehle/ddr-generator/internal/ddr"
	"github.com/joelkehle/ddr-generator/internal/extract"
	"github.com/joelkehle/ddr-generator/internal/generator"
	"github.com/joelkehle/ddr-generator/internal/logging"
	"github.com/joelkehle/ddr-generator/internal/render"
	"github.com/joelkehle/ddr-generator/internal/store"
	"github.com/joelkehle/ddr-generator/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

// app carries state shared by every subcommand once the root pre-run has loaded it.
type app struct {
	configPath string
	verbose    bool

	cfg      config.Config
	logger   *zap.Logger
	shutdown telemetry.ShutdownFunc
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ddr",
		Short: "Generate Detailed Diagnostic Reports from inspection and thermal documents",
		Long: `ddr merges a site inspection report and a thermal imaging report into one
Detailed Diagnostic Report: area-wise observations, probable root causes,
severity, recommended actions, conflicts and missing information.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close(cmd.Context())
		},
	}
	root.Version = version
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to ddr.yaml (defaults to $CONFIG_PATH or ./ddr.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newGenerateCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newShowCmd(a),
		newRenderCmd(),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := a.cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	a.logger, err = logging.New(level, a.cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.shutdown, err = telemetry.Setup(ctx, a.cfg.OTLPEndpoint, a.cfg.ServiceName)
	if err != nil {
		a.logger.Warn("tracing disabled", zap.Error(err))
		a.shutdown = nil
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil && a.logger != nil {
			a.logger.Warn("flush traces", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) pipeline() (*ddr.Pipeline, error) {
	rules := ddr.DefaultConfig()
	if a.cfg.RulesPath != "" {
		var err error
		rules, err = ddr.LoadConfig(a.cfg.RulesPath)
		if err != nil {
			return nil, err
		}
	}
	return ddr.NewPipeline(rules)
}

func (a *app) extractor() *extract.Extractor {
	if !a.cfg.OCREnabled {
		return extract.NewExtractor(nil)
	}
	t, err := extract.NewAnthropicTranscriber(a.cfg.AnthropicAPIKey)
	if err != nil {
		a.logger.Warn("ocr disabled", zap.Error(err))
		return extract.NewExtractor(nil)
	}
	return extract.NewExtractor(t)
}

func (a *app) openStore() (*store.SQLiteStore, error) {
	s, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return s, nil
}

func (a *app) pdfRenderer() render.PDFRenderer {
	if !a.cfg.RenderPDF {
		return nil
	}
	return render.NewChromiumPDFRenderer(a.cfg.WebDir)
}

// newGenerator wires a generator. With persist false it neither opens the history
// database nor writes artifacts.
func (a *app) newGenerator(persist bool) (*generator.Generator, func(), error) {
	pipeline, err := a.pipeline()
	if err != nil {
		return nil, nil, err
	}
	opts := generator.Options{
		Pipeline:       pipeline,
		Loader:         a.extractor(),
		Logger:         a.logger,
		ExtractTimeout: a.cfg.ExtractTimeout(),
	}
	cleanup := func() {}
	if persist {
		runs, err := a.openStore()
		if err != nil {
			return nil, nil, err
		}
		artifacts, err := store.NewArtifactStore(a.cfg.OutputDir)
		if err != nil {
			_ = runs.Close()
			return nil, nil, err
		}
		opts.Runs = runs
		opts.Artifacts = artifacts
		opts.PDF = a.pdfRenderer()
		cleanup = func() { _ = runs.Close() }
	}
	g, err := generator.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return g, cleanup, nil
}

func writeOutput(stdout io.Writer, path string, blob []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(blob)
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}
