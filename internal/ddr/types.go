package ddr

import "encoding/json"

const NotAvailable = "Not Available"

type Source string

const (
	SourceInspection Source = "inspection"
	SourceThermal    Source = "thermal"
)

// Label is the document name used when tagging area entries.
func (s Source) Label() string {
	switch s {
	case SourceInspection:
		return "Inspection"
	case SourceThermal:
		return "Thermal"
	default:
		return string(s)
	}
}

func (s Source) rank() int {
	if s == SourceThermal {
		return 1
	}
	return 0
}

type Category string

const (
	CategoryIssue          Category = "issue"
	CategoryCause          Category = "cause"
	CategoryAction         Category = "action"
	CategoryThermalReading Category = "thermal_reading"
	CategoryObservation    Category = "observation"
	CategoryDiscard        Category = "discard"
)

type Level string

const (
	LevelLow      Level = "Low"
	LevelModerate Level = "Moderate"
	LevelHigh     Level = "High"
	LevelCritical Level = "Critical"
)

var levelOrder = []Level{LevelLow, LevelModerate, LevelHigh, LevelCritical}

// Rank returns the ordinal position of the level, -1 when unknown.
func (l Level) Rank() int {
	for i, v := range levelOrder {
		if v == l {
			return i
		}
	}
	return -1
}

type ConflictKind string

const (
	ConflictNumeric     ConflictKind = "numeric"
	ConflictMoisture    ConflictKind = "moisture"
	ConflictCategorical ConflictKind = "categorical"
)

type RawLine struct {
	Source   Source
	Text     string
	Position int
}

type LineRef struct {
	Source   Source `json:"source"`
	Position int    `json:"position"`
}

func (r LineRef) less(o LineRef) bool {
	if r.Source != o.Source {
		return r.Source.rank() < o.Source.rank()
	}
	return r.Position < o.Position
}

type Observation struct {
	Source      Source    `json:"source"`
	Category    Category  `json:"category"`
	Area        string    `json:"area"`
	Text        string    `json:"text"`
	Temperature *float64  `json:"temperature,omitempty"`
	Provenance  []LineRef `json:"provenance"`
	MergedText  []string  `json:"merged_text,omitempty"`
}

// evidence returns the representative text followed by every absorbed duplicate.
func (o Observation) evidence() []string {
	out := make([]string, 0, 1+len(o.MergedText))
	out = append(out, o.Text)
	return append(out, o.MergedText...)
}

type AreaGroup struct {
	Area         string
	Observations []Observation
}

type ConflictRecord struct {
	Area        string       `json:"area"`
	Kind        ConflictKind `json:"kind"`
	Description string       `json:"description"`
}

type SeverityAssessment struct {
	Level     Level  `json:"level"`
	Reasoning string `json:"reasoning"`
}

// Section is either a populated list or explicitly unavailable. The "Not Available"
// literal only appears once a section is marshaled or rendered.
type Section struct {
	items       []string
	unavailable bool
}

func Populated(items []string) Section {
	if len(items) == 0 {
		return Unavailable()
	}
	return Section{items: append([]string(nil), items...)}
}

func Unavailable() Section {
	return Section{unavailable: true}
}

func (s Section) Available() bool { return !s.unavailable && len(s.items) > 0 }

func (s Section) Items() []string { return append([]string(nil), s.items...) }

// Lines returns the section as rendered, substituting the Not Available token.
func (s Section) Lines() []string {
	if !s.Available() {
		return []string{NotAvailable}
	}
	return s.Items()
}

func (s Section) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Lines())
}

func (s *Section) UnmarshalJSON(b []byte) error {
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	if len(items) == 0 || (len(items) == 1 && items[0] == NotAvailable) {
		*s = Unavailable()
		return nil
	}
	*s = Populated(items)
	return nil
}

type AreaSection struct {
	Area         string  `json:"area"`
	Observations Section `json:"observations"`
}

type Report struct {
	PropertyIssueSummary        Section            `json:"property_issue_summary"`
	AreaWiseObservations        []AreaSection      `json:"area_wise_observations"`
	ProbableRootCause           Section            `json:"probable_root_cause"`
	SeverityAssessment          SeverityAssessment `json:"severity_assessment"`
	RecommendedActions          []string           `json:"recommended_actions"`
	AdditionalNotes             []string           `json:"additional_notes"`
	MissingOrUnclearInformation Section            `json:"missing_or_unclear_information"`
	Conflicts                   []string           `json:"conflicts"`
	ConfidenceScores            map[string]float64 `json:"confidence_scores"`
}

type Input struct {
	Inspection []string
	Thermal    []string
}

type StageStats struct {
	RawLines        int `json:"raw_lines"`
	NormalizedLines int `json:"normalized_lines"`
	Discarded       int `json:"discarded"`
	Built           int `json:"built"`
	Validated       int `json:"validated"`
	Degraded        int `json:"degraded"`
	Deduplicated    int `json:"deduplicated"`
	Merged          int `json:"merged"`
	Conflicts       int `json:"conflicts"`
}

type Result struct {
	Report       Report
	Observations []Observation
	Conflicts    []ConflictRecord
	Severity     SeverityAssessment
	Stats        StageStats
}
