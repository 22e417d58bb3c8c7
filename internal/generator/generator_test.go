package generator

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joelkehle/ddr-generator/internal/ddr"
	"github.com/joelkehle/ddr-generator/internal/extract"
	"github.com/joelkehle/ddr-generator/internal/store"
)

type fakeLoader struct {
	docs map[ddr.Source]extract.Document
	errs map[ddr.Source]error
}

func (f *fakeLoader) Load(_ context.Context, role ddr.Source, path string) (extract.Document, error) {
	if err := f.errs[role]; err != nil {
		return extract.Document{}, err
	}
	doc := f.docs[role]
	doc.Role = role
	doc.Path = path
	return doc, nil
}

type fakeRuns struct {
	mu   sync.Mutex
	runs []store.Run
	err  error
}

func (f *fakeRuns) SaveRun(_ context.Context, run store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

type fakePDF struct {
	err   error
	calls int
}

func (f *fakePDF) Render(_ context.Context, report string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if !strings.Contains(report, "report_markdown") {
		return nil, errors.New("envelope missing markdown")
	}
	return []byte("%PDF-1.4 fake"), nil
}

func sampleLoader() *fakeLoader {
	return &fakeLoader{docs: map[ddr.Source]extract.Document{
		ddr.SourceInspection: {Method: extract.MethodText, Lines: []string{
			"Roof terrace shows damp patches near the north parapet and visible seepage marks.",
			"Seepage is likely due to a failed waterproofing membrane at the parapet junction.",
			"Recommend re-laying the roof membrane and sealing the parapet joints.",
		}},
		ddr.SourceThermal: {Method: extract.MethodPdfToText, Lines: []string{
			"Roof terrace north edge recorded 38.6 C hotspot at 11:00 AM.",
		}},
	}}
}

func newTestGenerator(t *testing.T, loader DocumentLoader, runs RunStore, pdf *fakePDF) (*Generator, *store.ArtifactStore) {
	t.Helper()
	pipeline, err := ddr.NewPipeline(ddr.DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	artifacts, err := store.NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	opts := Options{
		Pipeline:       pipeline,
		Loader:         loader,
		Runs:           runs,
		Artifacts:      artifacts,
		ExtractTimeout: time.Second,
	}
	if pdf != nil {
		opts.PDF = pdf
	}
	g, err := New(opts)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	g.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	g.newID = func() string { return "run-0001" }
	return g, artifacts
}

func TestNewRequiresPipelineAndLoader(t *testing.T) {
	if _, err := New(Options{Loader: sampleLoader()}); err == nil {
		t.Fatalf("expected error without pipeline")
	}
	pipeline, _ := ddr.NewPipeline(ddr.DefaultConfig())
	if _, err := New(Options{Pipeline: pipeline}); err == nil {
		t.Fatalf("expected error without loader")
	}
}

func TestGeneratePersistsArtifactsAndRun(t *testing.T) {
	runs := &fakeRuns{}
	pdf := &fakePDF{}
	g, artifacts := newTestGenerator(t, sampleLoader(), runs, pdf)

	env, err := g.Generate(context.Background(), Request{
		InspectionPath: "/uploads/site-inspection.txt",
		ThermalPath:    "/uploads/thermal.pdf",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if env.ID != "run-0001" {
		t.Fatalf("unexpected id %q", env.ID)
	}
	if env.RulesVersion != ddr.ConfigVersion {
		t.Fatalf("unexpected rules version %q", env.RulesVersion)
	}
	if got := env.Report.SeverityAssessment.Level; got.Rank() < ddr.LevelHigh.Rank() {
		t.Fatalf("expected at least High severity, got %s", got)
	}
	if !strings.Contains(env.ReportMarkdown, "# Detailed Diagnostic Report") {
		t.Fatalf("markdown missing title:\n%s", env.ReportMarkdown)
	}
	if !strings.Contains(env.ReportMarkdown, "site-inspection.txt") {
		t.Fatalf("markdown missing inspection file name:\n%s", env.ReportMarkdown)
	}
	if pdf.calls != 1 {
		t.Fatalf("expected one pdf render, got %d", pdf.calls)
	}
	for _, kind := range []string{store.ArtifactJSON, store.ArtifactMarkdown, store.ArtifactPDF} {
		if _, err := artifacts.Read(env.ID, kind); err != nil {
			t.Fatalf("read %s artifact: %v", kind, err)
		}
	}
	if len(runs.runs) != 1 {
		t.Fatalf("expected one saved run, got %d", len(runs.runs))
	}
	run := runs.runs[0]
	if run.ExtractionCount != 4 {
		t.Fatalf("expected 4 extracted lines, got %d", run.ExtractionCount)
	}
	if run.Severity != string(env.Report.SeverityAssessment.Level) {
		t.Fatalf("run severity %q does not match report", run.Severity)
	}
	if run.InspectionHash == run.ThermalHash {
		t.Fatalf("expected distinct document hashes")
	}

	stored, err := DecodeEnvelope([]byte(run.ReportJSON))
	if err != nil {
		t.Fatalf("decode stored envelope: %v", err)
	}
	if stored.ReportMarkdown != env.ReportMarkdown {
		t.Fatalf("stored markdown differs from returned markdown")
	}
	if stored.Artifacts["pdf"] == "" {
		t.Fatalf("expected pdf artifact path in stored envelope")
	}
}

func TestGenerateInlineLinesSkipPersist(t *testing.T) {
	runs := &fakeRuns{}
	g, artifacts := newTestGenerator(t, &fakeLoader{}, runs, nil)

	env, err := g.Generate(context.Background(), Request{
		InspectionLines: []string{"Kitchen ceiling has a water stain near the light fitting."},
		SkipPersist:     true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := env.Documents["inspection"].Method; got != "inline" {
		t.Fatalf("expected inline method, got %q", got)
	}
	if len(runs.runs) != 0 {
		t.Fatalf("expected no saved runs")
	}
	if _, err := artifacts.Read(env.ID, store.ArtifactJSON); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no json artifact, got %v", err)
	}
	if !strings.Contains(strings.Join(env.Report.MissingOrUnclearInformation.Items(), "\n"), "Thermal document contained no usable lines.") {
		t.Fatalf("expected missing thermal note, got %v", env.Report.MissingOrUnclearInformation.Items())
	}
}

func TestGenerateRecordsExtractionFailureAsNote(t *testing.T) {
	loader := sampleLoader()
	loader.errs = map[ddr.Source]error{ddr.SourceThermal: errors.New("pdftotext: exit status 1")}
	g, _ := newTestGenerator(t, loader, &fakeRuns{}, nil)

	env, err := g.Generate(context.Background(), Request{
		InspectionPath: "/uploads/inspection.txt",
		ThermalPath:    "/uploads/thermal.pdf",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	thermal := env.Documents["thermal"]
	if thermal.Method != extract.MethodNone {
		t.Fatalf("expected method none, got %q", thermal.Method)
	}
	if len(env.IngestionNotes) != 1 || !strings.HasPrefix(env.IngestionNotes[0], "Thermal: Extraction failed") {
		t.Fatalf("unexpected ingestion notes %v", env.IngestionNotes)
	}
	if got := env.IngestionConfidence["thermal"]; got >= 1 {
		t.Fatalf("expected reduced thermal ingestion confidence, got %v", got)
	}
	if got := env.IngestionConfidence["inspection"]; got != 1 {
		t.Fatalf("expected full inspection ingestion confidence, got %v", got)
	}
}

func TestGenerateRejectsUnsupportedDocument(t *testing.T) {
	loader := sampleLoader()
	loader.errs = map[ddr.Source]error{ddr.SourceInspection: extract.ErrUnsupported}
	runs := &fakeRuns{}
	g, _ := newTestGenerator(t, loader, runs, nil)

	_, err := g.Generate(context.Background(), Request{
		InspectionPath: "/uploads/inspection.xlsx",
		ThermalPath:    "/uploads/thermal.pdf",
	})
	if !errors.Is(err, extract.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if StageNameFromError(err) != StageExtract {
		t.Fatalf("expected extract stage, got %q", StageNameFromError(err))
	}
	if len(runs.runs) != 0 {
		t.Fatalf("expected no saved run")
	}
}

func TestGeneratePDFFailureIsNotFatal(t *testing.T) {
	pdf := &fakePDF{err: errors.New("chrome not found")}
	g, artifacts := newTestGenerator(t, sampleLoader(), &fakeRuns{}, pdf)

	env, err := g.Generate(context.Background(), Request{InspectionPath: "a.txt", ThermalPath: "b.pdf"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, ok := env.Artifacts["pdf"]; ok {
		t.Fatalf("pdf artifact should not be recorded")
	}
	if _, err := artifacts.Read(env.ID, store.ArtifactPDF); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no pdf artifact, got %v", err)
	}
}

func TestGenerateSaveRunFailure(t *testing.T) {
	g, artifacts := newTestGenerator(t, sampleLoader(), &fakeRuns{err: errors.New("database is locked")}, &fakePDF{})

	_, err := g.Generate(context.Background(), Request{InspectionPath: "a.txt", ThermalPath: "b.pdf"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if StageNameFromError(err) != StagePersist {
		t.Fatalf("expected persist stage, got %q", StageNameFromError(err))
	}
	for _, kind := range []string{store.ArtifactMarkdown, store.ArtifactJSON, store.ArtifactPDF} {
		if _, err := artifacts.Read("run-0001", kind); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected %s artifact to be removed, got %v", kind, err)
		}
	}
}

func TestEnvelopeMetaRoundTrip(t *testing.T) {
	g, artifacts := newTestGenerator(t, sampleLoader(), nil, nil)
	env, err := g.Generate(context.Background(), Request{InspectionPath: "/tmp/insp.txt", ThermalPath: "/tmp/therm.pdf"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	blob, err := artifacts.Read(env.ID, store.ArtifactJSON)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	decoded, err := DecodeEnvelope(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := ddr.RenderMarkdown(decoded.Report, decoded.Meta()); got != env.ReportMarkdown {
		t.Fatalf("re-rendered markdown differs:\n%s\n---\n%s", got, env.ReportMarkdown)
	}
	if _, err := os.Stat(decoded.Artifacts["markdown"]); err != nil {
		t.Fatalf("markdown artifact path: %v", err)
	}
}

func TestProcessingTraceIsCopied(t *testing.T) {
	steps := ProcessingTrace()
	if len(steps) == 0 {
		t.Fatalf("expected steps")
	}
	steps[0] = "changed"
	if ProcessingTrace()[0] == "changed" {
		t.Fatalf("ProcessingTrace must return a copy")
	}
}
