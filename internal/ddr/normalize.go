package ddr

import (
	"strings"
	"unicode"
)

// normalize turns one document's raw lines into RawLines. Positions are 1-based
// indexes into raw so provenance survives dropped lines.
func (c *compiledConfig) normalize(src Source, raw []string) []RawLine {
	out := make([]RawLine, 0, len(raw))
	for i, line := range raw {
		text, ok := c.normalizeLine(line)
		if !ok {
			continue
		}
		out = append(out, RawLine{Source: src, Text: text, Position: i + 1})
	}
	return out
}

func (c *compiledConfig) normalizeLine(line string) (string, bool) {
	text := collapseSpace(strings.Map(cleanRune, line))
	text = c.bullet.ReplaceAllString(text, "")
	text = collapseSpace(strings.Trim(text, c.NoiseChars))
	if text == "" || !hasLetter(text) {
		return "", false
	}
	for _, re := range c.structural {
		if re.MatchString(text) {
			return "", false
		}
	}
	return text, true
}

func cleanRune(r rune) rune {
	switch {
	case r == '\u200b', r == '\u200c', r == '\u200d', r == '\u2060', r == '\ufeff':
		return -1
	case unicode.IsControl(r):
		return ' '
	}
	return r
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
