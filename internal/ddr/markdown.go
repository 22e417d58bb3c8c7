package ddr

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ReportMeta carries the identifiers the calling layer attaches to a report.
type ReportMeta struct {
	ID                  string
	CreatedAt           time.Time
	InspectionFile      string
	ThermalFile         string
	RulesVersion        string
	IngestionConfidence map[string]float64
}

// RenderMarkdown is the only place besides JSON marshaling where unavailable sections
// become the Not Available token.
func RenderMarkdown(r Report, meta ReportMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Detailed Diagnostic Report\n\n")
	if meta.ID != "" {
		fmt.Fprintf(&b, "- Report ID: %s\n", meta.ID)
	}
	if !meta.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.CreatedAt.UTC().Format(time.RFC3339))
	}
	if meta.InspectionFile != "" {
		fmt.Fprintf(&b, "- Inspection document: %s\n", sanitizeLine(meta.InspectionFile))
	}
	if meta.ThermalFile != "" {
		fmt.Fprintf(&b, "- Thermal document: %s\n", sanitizeLine(meta.ThermalFile))
	}
	if meta.RulesVersion != "" {
		fmt.Fprintf(&b, "- Rules version: %s\n", meta.RulesVersion)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## 1. Property Issue Summary\n\n")
	writeList(&b, r.PropertyIssueSummary.Lines())

	fmt.Fprintf(&b, "## 2. Area-wise Observations\n\n")
	for _, area := range r.AreaWiseObservations {
		fmt.Fprintf(&b, "### %s\n\n", sanitizeLine(area.Area))
		writeList(&b, area.Observations.Lines())
	}

	fmt.Fprintf(&b, "## 3. Probable Root Cause\n\n")
	writeList(&b, r.ProbableRootCause.Lines())

	fmt.Fprintf(&b, "## 4. Severity Assessment\n\n")
	fmt.Fprintf(&b, "- Level: **%s**\n", r.SeverityAssessment.Level)
	fmt.Fprintf(&b, "- Reasoning: %s\n\n", sanitizeLine(r.SeverityAssessment.Reasoning))

	fmt.Fprintf(&b, "## 5. Recommended Actions\n\n")
	writeList(&b, orNotAvailable(r.RecommendedActions))

	fmt.Fprintf(&b, "## 6. Additional Notes\n\n")
	writeList(&b, orNotAvailable(r.AdditionalNotes))

	fmt.Fprintf(&b, "## 7. Missing or Unclear Information\n\n")
	writeList(&b, r.MissingOrUnclearInformation.Lines())

	fmt.Fprintf(&b, "## 8. Conflicts Detected\n\n")
	if len(r.Conflicts) == 0 {
		fmt.Fprintf(&b, "- No conflicts detected between the inspection and thermal documents.\n\n")
	} else {
		writeList(&b, r.Conflicts)
	}

	fmt.Fprintf(&b, "## 9. Confidence Scores\n\n")
	fmt.Fprintf(&b, "| Category | Score |\n|---|---|\n")
	for _, k := range sortedKeys(r.ConfidenceScores) {
		fmt.Fprintf(&b, "| %s | %.2f |\n", k, r.ConfidenceScores[k])
	}
	if len(meta.IngestionConfidence) > 0 {
		fmt.Fprintf(&b, "\nIngestion confidence:\n\n")
		for _, k := range sortedKeys(meta.IngestionConfidence) {
			fmt.Fprintf(&b, "- %s: %.2f\n", k, meta.IngestionConfidence[k])
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", sanitizeLine(item))
	}
	b.WriteString("\n")
}

func orNotAvailable(items []string) []string {
	if len(items) == 0 {
		return []string{NotAvailable}
	}
	return items
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sanitizeLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
