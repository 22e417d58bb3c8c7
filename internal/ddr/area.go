package ddr

import "strings"

// classifyArea is total: the first zone whose keywords match wins, otherwise the
// default area.
func (c *compiledConfig) classifyArea(text string) string {
	lower := strings.ToLower(text)
	for _, z := range c.zones {
		if z.match.MatchString(lower) {
			return z.area
		}
	}
	return c.DefaultArea
}
