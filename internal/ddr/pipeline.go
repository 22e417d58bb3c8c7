package ddr

import "fmt"

const (
	StageNormalize   = "normalize"
	StageTag         = "tag"
	StageValidate    = "validate"
	StageDeduplicate = "deduplicate"
	StageConflicts   = "conflicts"
	StageSeverity    = "severity"
	StageAssemble    = "assemble"
)

// StageProgressFn receives a message after each stage completes. The pipeline never
// logs on its own.
type StageProgressFn func(stage, message string)

// Pipeline holds an immutable compiled configuration and is safe for concurrent use.
// Every Run allocates its own working state.
type Pipeline struct {
	cfg *compiledConfig
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	cc, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cc}, nil
}

// Version reports the rule table version the pipeline was built from.
func (p *Pipeline) Version() string { return p.cfg.Version }

func (p *Pipeline) Run(in Input) Result {
	return p.run(in, nil)
}

func (p *Pipeline) RunWithProgress(in Input, progress StageProgressFn) Result {
	return p.run(in, progress)
}

func (p *Pipeline) run(in Input, progress StageProgressFn) Result {
	c := p.cfg
	var stats StageStats

	stats.RawLines = len(in.Inspection) + len(in.Thermal)
	lines := append(c.normalize(SourceInspection, in.Inspection), c.normalize(SourceThermal, in.Thermal)...)
	stats.NormalizedLines = len(lines)
	emit(progress, StageNormalize, fmt.Sprintf("%d of %d lines kept after normalization", stats.NormalizedLines, stats.RawLines))

	built := make([]Observation, 0, len(lines))
	for _, line := range lines {
		category := c.tag(line)
		if category == CategoryDiscard {
			stats.Discarded++
			continue
		}
		built = append(built, c.build(line, category, c.classifyArea(line.Text)))
	}
	stats.Built = len(built)
	emit(progress, StageTag, fmt.Sprintf("%d observations built, %d lines discarded", stats.Built, stats.Discarded))

	usable := map[Source]int{}
	valid := make([]Observation, 0, len(built))
	for _, o := range built {
		v, ok, degraded := c.validate(o)
		if !ok {
			continue
		}
		if degraded {
			stats.Degraded++
		}
		usable[v.Source]++
		valid = append(valid, v)
	}
	stats.Validated = len(valid)
	emit(progress, StageValidate, fmt.Sprintf("%d observations valid, %d degraded to plain observations", stats.Validated, stats.Degraded))

	deduped, merged := c.deduplicate(valid)
	stats.Deduplicated = len(deduped)
	stats.Merged = merged
	emit(progress, StageDeduplicate, fmt.Sprintf("%d observations after merging %d duplicates", stats.Deduplicated, stats.Merged))

	groups := groupByArea(deduped)
	conflicts := c.detectConflicts(groups)
	stats.Conflicts = len(conflicts)
	emit(progress, StageConflicts, fmt.Sprintf("%d conflicts across %d areas", stats.Conflicts, len(groups)))

	severity := c.scoreSeverity(deduped, conflicts)
	emit(progress, StageSeverity, fmt.Sprintf("severity %s", severity.Level))

	report := c.assemble(assembly{
		observations: deduped,
		groups:       groups,
		conflicts:    conflicts,
		severity:     severity,
		merged:       merged,
		usable:       usable,
	})
	emit(progress, StageAssemble, "report assembled")

	return Result{
		Report:       report,
		Observations: deduped,
		Conflicts:    conflicts,
		Severity:     severity,
		Stats:        stats,
	}
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}
