package extract

import "strings"

// IngestionConfidence scores how much of a document's text reached the pipeline intact.
// It is kept apart from the report's per-category confidence scores.
func IngestionConfidence(notes []string) float64 {
	if len(notes) == 0 {
		return 1.0
	}
	score := 0.9
	for _, n := range notes {
		lower := strings.ToLower(n)
		switch {
		case strings.Contains(lower, "unavailable"), strings.Contains(lower, "fallback"), strings.Contains(lower, "failed"):
			return 0.6
		case strings.Contains(lower, "ocr"):
			score = min(score, 0.8)
		}
	}
	return score
}
