// Package generator runs one report request end to end: extraction, the report
// pipeline, rendering and persistence.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/ddr-generator/internal/ddr"
	"github.com/joelkehle/ddr-generator/internal/extract"
	"github.com/joelkehle/ddr-generator/internal/render"
	"github.com/joelkehle/ddr-generator/internal/store"
	"github.com/joelkehle/ddr-generator/internal/telemetry"
)

const (
	StageExtract = "extract"
	StageAnalyze = "analyze"
	StageRender  = "render"
	StagePersist = "persist"
)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

type DocumentLoader interface {
	Load(ctx context.Context, role ddr.Source, path string) (extract.Document, error)
}

type RunStore interface {
	SaveRun(ctx context.Context, run store.Run) error
}

// Request names each document by path, or supplies its lines directly when the path is
// empty.
type Request struct {
	InspectionPath  string
	ThermalPath     string
	InspectionLines []string
	ThermalLines    []string
	SkipPersist     bool
	SkipPDF         bool
}

type Envelope struct {
	ID                  string                      `json:"id"`
	CreatedAt           time.Time                   `json:"created_at"`
	RulesVersion        string                      `json:"rules_version"`
	Report              ddr.Report                  `json:"report"`
	ReportMarkdown      string                      `json:"report_markdown"`
	Documents           map[string]extract.Document `json:"documents"`
	IngestionNotes      []string                    `json:"ingestion_notes"`
	IngestionConfidence map[string]float64          `json:"ingestion_confidence"`
	Stats               ddr.StageStats              `json:"stats"`
	Artifacts           map[string]string           `json:"artifacts,omitempty"`
}

// Meta rebuilds the markdown header fields from a stored envelope.
func (e Envelope) Meta() ddr.ReportMeta {
	meta := ddr.ReportMeta{
		ID:                  e.ID,
		CreatedAt:           e.CreatedAt,
		RulesVersion:        e.RulesVersion,
		IngestionConfidence: e.IngestionConfidence,
	}
	if d, ok := e.Documents[string(ddr.SourceInspection)]; ok && d.Path != "" {
		meta.InspectionFile = filepath.Base(d.Path)
	}
	if d, ok := e.Documents[string(ddr.SourceThermal)]; ok && d.Path != "" {
		meta.ThermalFile = filepath.Base(d.Path)
	}
	return meta
}

func DecodeEnvelope(blob []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

type Options struct {
	Pipeline       *ddr.Pipeline
	Loader         DocumentLoader
	Runs           RunStore
	Artifacts      *store.ArtifactStore
	PDF            render.PDFRenderer
	Logger         *zap.Logger
	ExtractTimeout time.Duration
}

// Generator is safe for concurrent use; each request gets its own pipeline run.
type Generator struct {
	pipeline       *ddr.Pipeline
	loader         DocumentLoader
	runs           RunStore
	artifacts      *store.ArtifactStore
	pdf            render.PDFRenderer
	logger         *zap.Logger
	extractTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

func New(opts Options) (*Generator, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if opts.Loader == nil {
		return nil, errors.New("document loader is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.ExtractTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Generator{
		pipeline:       opts.Pipeline,
		loader:         opts.Loader,
		runs:           opts.Runs,
		artifacts:      opts.Artifacts,
		pdf:            opts.PDF,
		logger:         logger.Named("generator"),
		extractTimeout: timeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}, nil
}

func (g *Generator) Generate(ctx context.Context, req Request) (Envelope, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ddr.generate")
	defer span.End()

	env := Envelope{
		ID:           g.newID(),
		CreatedAt:    g.now().UTC(),
		RulesVersion: g.pipeline.Version(),
	}
	span.SetAttributes(attribute.String("ddr.report_id", env.ID))
	log := g.logger.With(zap.String("report_id", env.ID))

	inspection, thermal, err := g.extract(ctx, log, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return env, &StageError{Stage: StageExtract, Err: err}
	}
	env.Documents = map[string]extract.Document{
		string(ddr.SourceInspection): inspection,
		string(ddr.SourceThermal):    thermal,
	}
	env.IngestionNotes = []string{}
	env.IngestionConfidence = map[string]float64{}
	for _, doc := range []extract.Document{inspection, thermal} {
		for _, n := range doc.Notes {
			env.IngestionNotes = append(env.IngestionNotes, doc.Role.Label()+": "+n)
		}
		env.IngestionConfidence[string(doc.Role)] = extract.IngestionConfidence(doc.Notes)
	}

	_, analyzeSpan := telemetry.Tracer().Start(ctx, "ddr.analyze")
	result := g.pipeline.RunWithProgress(ddr.Input{Inspection: inspection.Lines, Thermal: thermal.Lines}, func(stage, message string) {
		analyzeSpan.AddEvent(stage, traceEventMessage(message))
		log.Debug("pipeline stage", zap.String("stage", stage), zap.String("detail", message))
	})
	analyzeSpan.SetAttributes(
		attribute.Int("ddr.observations", result.Stats.Deduplicated),
		attribute.Int("ddr.conflicts", result.Stats.Conflicts),
		attribute.String("ddr.severity", string(result.Severity.Level)),
	)
	analyzeSpan.End()
	env.Report = result.Report
	env.Stats = result.Stats
	env.ReportMarkdown = ddr.RenderMarkdown(env.Report, env.Meta())
	log.Info("report generated",
		zap.Int("observations", result.Stats.Deduplicated),
		zap.Int("conflicts", result.Stats.Conflicts),
		zap.String("severity", string(result.Severity.Level)),
	)

	if req.SkipPersist {
		return env, nil
	}
	if err := g.persist(ctx, log, &env, inspection, thermal, req.SkipPDF); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return env, err
	}
	return env, nil
}

func traceEventMessage(message string) trace.EventOption {
	return trace.WithAttributes(attribute.String("detail", message))
}

// extract loads both documents concurrently. A document that cannot be read becomes an
// empty document with a note so the report still reflects the other one. Unsupported
// or oversized uploads are rejected outright.
func (g *Generator) extract(ctx context.Context, log *zap.Logger, req Request) (extract.Document, extract.Document, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ddr.extract")
	defer span.End()

	type job struct {
		role  ddr.Source
		path  string
		lines []string
	}
	jobs := []job{
		{ddr.SourceInspection, req.InspectionPath, req.InspectionLines},
		{ddr.SourceThermal, req.ThermalPath, req.ThermalLines},
	}
	docs := make([]extract.Document, len(jobs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		eg.Go(func() error {
			if strings.TrimSpace(j.path) == "" {
				docs[i] = extract.Document{Role: j.role, Lines: j.lines, Method: "inline"}
				if docs[i].Lines == nil {
					docs[i].Lines = []string{}
				}
				return nil
			}
			dctx, cancel := context.WithTimeout(egCtx, g.extractTimeout)
			defer cancel()
			started := time.Now()
			doc, err := g.loader.Load(dctx, j.role, j.path)
			if errors.Is(err, extract.ErrUnsupported) || errors.Is(err, extract.ErrTooLarge) {
				return fmt.Errorf("%s document: %w", j.role, err)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("extraction failed", zap.String("role", string(j.role)), zap.Error(err))
				doc = extract.Document{
					Role:   j.role,
					Path:   j.path,
					Lines:  []string{},
					Method: extract.MethodNone,
					Notes:  []string{fmt.Sprintf("Extraction failed: %v", err)},
				}
			}
			log.Debug("document extracted",
				zap.String("role", string(j.role)),
				zap.String("method", doc.Method),
				zap.Int("lines", len(doc.Lines)),
				zap.Duration("elapsed", time.Since(started)),
			)
			docs[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return extract.Document{}, extract.Document{}, err
	}
	return docs[0], docs[1], nil
}

func (g *Generator) persist(ctx context.Context, log *zap.Logger, env *Envelope, inspection, thermal extract.Document, skipPDF bool) error {
	ctx, span := telemetry.Tracer().Start(ctx, "ddr.persist")
	defer span.End()

	if g.artifacts != nil {
		env.Artifacts = map[string]string{}
		path, err := g.artifacts.Write(env.ID, store.ArtifactMarkdown, []byte(env.ReportMarkdown))
		if err != nil {
			return &StageError{Stage: StagePersist, Err: err}
		}
		env.Artifacts["markdown"] = path

		if g.pdf != nil && !skipPDF {
			if path, err := g.renderPDF(ctx, env); err != nil {
				log.Warn("pdf render failed", zap.Error(err))
			} else {
				env.Artifacts["pdf"] = path
			}
		}
		if jsonPath, err := g.artifacts.Path(env.ID, store.ArtifactJSON); err == nil {
			env.Artifacts["json"] = jsonPath
		}
	}

	blob, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		g.discardArtifacts(log, env.ID)
		return &StageError{Stage: StagePersist, Err: err}
	}
	if g.artifacts != nil {
		if _, err := g.artifacts.Write(env.ID, store.ArtifactJSON, blob); err != nil {
			g.discardArtifacts(log, env.ID)
			return &StageError{Stage: StagePersist, Err: err}
		}
	}
	if g.runs != nil {
		run := store.Run{
			ID:              env.ID,
			CreatedAt:       env.CreatedAt,
			InspectionHash:  store.HashLines(inspection.Lines),
			ThermalHash:     store.HashLines(thermal.Lines),
			ExtractionCount: len(inspection.Lines) + len(thermal.Lines),
			ConflictsCount:  len(env.Report.Conflicts),
			Severity:        string(env.Report.SeverityAssessment.Level),
			RulesVersion:    env.RulesVersion,
			ReportJSON:      string(blob),
		}
		if err := g.runs.SaveRun(ctx, run); err != nil {
			g.discardArtifacts(log, env.ID)
			return &StageError{Stage: StagePersist, Err: err}
		}
	}
	return nil
}

func (g *Generator) renderPDF(ctx context.Context, env *Envelope) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ddr.render")
	defer span.End()

	blob, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	pdf, err := g.pdf.Render(ctx, string(blob))
	if err != nil {
		return "", &StageError{Stage: StageRender, Err: err}
	}
	return g.artifacts.Write(env.ID, store.ArtifactPDF, pdf)
}

var processingTrace = []string{
	"Extract text from the inspection and thermal documents",
	"Normalize lines and drop structural noise",
	"Tag each line as issue, cause, action, thermal reading or observation",
	"Classify each observation into a property area",
	"Build and validate observations",
	"Merge near-duplicate observations within each area",
	"Detect numeric, moisture and categorical conflicts",
	"Score severity and confidence",
	"Extract probable root causes",
	"Assemble the report and persist history and artifacts",
}

// ProcessingTrace lists the processing steps in the order they run.
func ProcessingTrace() []string {
	return append([]string(nil), processingTrace...)
}

// discardArtifacts removes files written for a run that never reached the run store.
func (g *Generator) discardArtifacts(log *zap.Logger, id string) {
	if g.artifacts == nil {
		return
	}
	if err := g.artifacts.Remove(id); err != nil {
		log.Warn("artifact cleanup failed", zap.String("id", id), zap.Error(err))
	}
}
