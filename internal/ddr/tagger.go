package ddr

import (
	"regexp"
	"strings"
	"unicode"
)

// tag assigns exactly one category to a normalized line. The thermal pattern only
// applies to the thermal document; keyword rules follow TagRules order.
func (c *compiledConfig) tag(line RawLine) Category {
	if line.Source == SourceThermal && c.thermal.MatchString(line.Text) {
		return CategoryThermalReading
	}
	lower := strings.ToLower(line.Text)
	for _, rule := range c.rules {
		text := lower
		if rule.negation != nil {
			text = rule.negation.ReplaceAllString(text, " ")
		}
		if rule.match.MatchString(text) {
			return rule.category
		}
	}
	if informativeWords(line.Text) >= c.MinInformativeWords {
		return CategoryObservation
	}
	return CategoryDiscard
}

func informativeWords(s string) int {
	n := 0
	for _, w := range strings.Fields(s) {
		if strings.IndexFunc(w, unicode.IsLetter) >= 0 {
			n++
		}
	}
	return n
}

// positive reports whether re matches text once negated spans are blanked out.
func (c *compiledConfig) positive(re *regexp.Regexp, text string) bool {
	return re.MatchString(c.negation.ReplaceAllString(strings.ToLower(text), " "))
}

func (c *compiledConfig) negated(text string) bool {
	return c.negation.MatchString(strings.ToLower(text))
}
