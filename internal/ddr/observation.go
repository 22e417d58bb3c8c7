package ddr

import (
	"strconv"
	"unicode/utf8"
)

func (c *compiledConfig) build(line RawLine, category Category, area string) Observation {
	obs := Observation{
		Source:     line.Source,
		Category:   category,
		Area:       area,
		Text:       line.Text,
		Provenance: []LineRef{{Source: line.Source, Position: line.Position}},
	}
	if category == CategoryThermalReading {
		obs.Temperature = c.parseTemperature(line.Text)
	}
	return obs
}

// parseTemperature returns the first temperature in text, nil when none parses.
func (c *compiledConfig) parseTemperature(text string) *float64 {
	m := c.thermal.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || !finite(v) {
		return nil
	}
	return &v
}

// validate drops observations too short to be informative. A thermal reading without
// a usable temperature keeps its text as a plain observation.
func (c *compiledConfig) validate(obs Observation) (out Observation, ok, degraded bool) {
	if utf8.RuneCountInString(obs.Text) < c.MinTextLength || len(obs.Provenance) == 0 {
		return Observation{}, false, false
	}
	if obs.Category == CategoryThermalReading && (obs.Temperature == nil || !finite(*obs.Temperature)) {
		obs.Category = CategoryObservation
		obs.Temperature = nil
		return obs, true, true
	}
	if obs.Category != CategoryThermalReading {
		obs.Temperature = nil
	}
	return obs, true, false
}
