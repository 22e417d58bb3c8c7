package ddr

import (
	"fmt"
	"math"
	"strings"
)

const lowRiskReasoning = "Only limited low-risk observations are present in the source documents."

// scoreSeverity adds one band per signal. Every term is non-decreasing in its input, so
// more conflicts or structural indicators never lower the level.
func (c *compiledConfig) scoreSeverity(obs []Observation, conflicts []ConflictRecord) SeverityAssessment {
	score := 0
	var signals []string

	issues := 0
	for _, o := range obs {
		if o.Category == CategoryIssue {
			issues++
		}
	}
	if issues > 0 {
		score++
		signals = append(signals, fmt.Sprintf("%d issue observation(s) recorded", issues))
	}

	if kw, ok := c.structuralIndicator(obs); ok {
		score++
		signals = append(signals, fmt.Sprintf("structural indicator present (%s)", kw))
	}

	if n := len(conflicts); n > 0 {
		score += min(n, c.ConflictBandCap)
		signals = append(signals, fmt.Sprintf("%d conflict(s) between inspection and thermal evidence", n))
	}

	if hi, ok := maxTemperature(obs); ok && hi >= c.HotspotThreshold {
		score++
		signals = append(signals, fmt.Sprintf("maximum temperature %.1f°C reaches the %.1f°C hotspot threshold", hi, c.HotspotThreshold))
	}

	level := levelOrder[min(score, len(levelOrder)-1)]
	if len(signals) == 0 {
		return SeverityAssessment{Level: level, Reasoning: lowRiskReasoning}
	}
	return SeverityAssessment{
		Level:     level,
		Reasoning: fmt.Sprintf("%s severity: %s.", level, strings.Join(signals, "; ")),
	}
}

func (c *compiledConfig) structuralIndicator(obs []Observation) (string, bool) {
	for _, o := range obs {
		for _, text := range o.evidence() {
			clean := c.negation.ReplaceAllString(strings.ToLower(text), " ")
			if kw := c.structure.FindString(clean); kw != "" {
				return kw, true
			}
		}
	}
	return "", false
}

func maxTemperature(obs []Observation) (float64, bool) {
	hi, found := math.Inf(-1), false
	for _, o := range obs {
		if o.Category == CategoryThermalReading && o.Temperature != nil {
			hi = max(hi, *o.Temperature)
			found = true
		}
	}
	return hi, found
}

var confidenceCategories = []struct {
	key      string
	category Category
}{
	{"issue", CategoryIssue},
	{"cause", CategoryCause},
	{"action", CategoryAction},
	{"thermal", CategoryThermalReading},
}

// confidence counts corroborating source lines per output category and saturates at
// ConfidenceSaturation lines.
func (c *compiledConfig) confidence(obs []Observation) map[string]float64 {
	counts := map[Category]int{}
	for _, o := range obs {
		counts[o.Category] += len(o.Provenance)
	}
	scores := make(map[string]float64, len(confidenceCategories))
	for _, cc := range confidenceCategories {
		v := math.Min(1, float64(counts[cc.category])/float64(c.ConfidenceSaturation))
		scores[cc.key] = math.Round(v*100) / 100
	}
	return scores
}
