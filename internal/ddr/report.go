package ddr

import "fmt"

func textsOf(obs []Observation, category Category) []string {
	out := []string{}
	for _, o := range obs {
		if o.Category == category {
			out = append(out, o.Text)
		}
	}
	return out
}

// rootCause selects the explicit cause statements in first-appearance order.
func rootCause(obs []Observation) Section {
	return Populated(textsOf(obs, CategoryCause))
}

type assembly struct {
	observations []Observation
	groups       []AreaGroup
	conflicts    []ConflictRecord
	severity     SeverityAssessment
	merged       int
	usable       map[Source]int
}

func (c *compiledConfig) assemble(a assembly) Report {
	report := Report{
		PropertyIssueSummary:        Populated(textsOf(a.observations, CategoryIssue)),
		AreaWiseObservations:        c.areaSections(a.groups),
		ProbableRootCause:           rootCause(a.observations),
		SeverityAssessment:          a.severity,
		RecommendedActions:          textsOf(a.observations, CategoryAction),
		AdditionalNotes:             c.notes(a),
		MissingOrUnclearInformation: Populated(missingInformation(a)),
		Conflicts:                   []string{},
		ConfidenceScores:            c.confidence(a.observations),
	}
	for _, rec := range a.conflicts {
		report.Conflicts = append(report.Conflicts, rec.Description)
	}
	return report
}

func (c *compiledConfig) areaSections(groups []AreaGroup) []AreaSection {
	if len(groups) == 0 {
		return []AreaSection{{Area: c.DefaultArea, Observations: Unavailable()}}
	}
	out := make([]AreaSection, 0, len(groups))
	for _, g := range groups {
		entries := make([]string, 0, len(g.Observations))
		for _, o := range g.Observations {
			entries = append(entries, fmt.Sprintf("[%s] %s", o.Source.Label(), o.Text))
		}
		out = append(out, AreaSection{Area: g.Area, Observations: Populated(entries)})
	}
	return out
}

func (c *compiledConfig) notes(a assembly) []string {
	notes := []string{}
	for _, o := range a.observations {
		if o.Category == CategoryThermalReading && o.Temperature != nil {
			notes = append(notes, fmt.Sprintf("Thermal reading in %s: %.1f°C", o.Area, *o.Temperature))
		}
	}
	if a.merged > 0 {
		notes = append(notes, fmt.Sprintf("%d near-duplicate observation(s) were merged; provenance lists every contributing line.", a.merged))
	}
	general := 0
	for _, o := range a.observations {
		if o.Area == c.DefaultArea {
			general++
		}
	}
	if general > 0 {
		notes = append(notes, fmt.Sprintf("%d observation(s) could not be mapped to a specific area and are listed under %s.", general, c.DefaultArea))
	}
	return notes
}

func missingInformation(a assembly) []string {
	var missing []string
	for _, src := range []Source{SourceInspection, SourceThermal} {
		if a.usable[src] == 0 {
			missing = append(missing, fmt.Sprintf("%s document contained no usable lines.", src.Label()))
		}
	}
	has := map[Category]bool{}
	for _, o := range a.observations {
		has[o.Category] = true
	}
	if !has[CategoryThermalReading] {
		missing = append(missing, "No temperature readings were found in the thermal document.")
	}
	if !has[CategoryCause] {
		missing = append(missing, "No root cause statements were found in the source documents.")
	}
	if !has[CategoryAction] {
		missing = append(missing, "No recommended actions were found in the source documents.")
	}
	if !has[CategoryIssue] {
		missing = append(missing, "No issue descriptions were found in the source documents.")
	}
	return missing
}
