package ddr

import "fmt"

// groupByArea rebuilds the area groups in first-seen order.
func groupByArea(obs []Observation) []AreaGroup {
	var groups []AreaGroup
	index := map[string]int{}
	for _, o := range obs {
		i, ok := index[o.Area]
		if !ok {
			i = len(groups)
			index[o.Area] = i
			groups = append(groups, AreaGroup{Area: o.Area})
		}
		groups[i].Observations = append(groups[i].Observations, o)
	}
	return groups
}

func (c *compiledConfig) detectConflicts(groups []AreaGroup) []ConflictRecord {
	records := []ConflictRecord{}
	for _, g := range groups {
		for _, kind := range c.ConflictOrder {
			var desc string
			var found bool
			switch kind {
			case ConflictNumeric:
				desc, found = c.numericConflict(g)
			case ConflictMoisture:
				desc, found = c.moistureConflict(g)
			case ConflictCategorical:
				desc, found = c.categoricalConflict(g)
			}
			if found {
				records = append(records, ConflictRecord{Area: g.Area, Kind: kind, Description: desc})
			}
		}
	}
	return records
}

func readings(g AreaGroup) []float64 {
	var out []float64
	for _, o := range g.Observations {
		if o.Category == CategoryThermalReading && o.Temperature != nil {
			out = append(out, *o.Temperature)
		}
	}
	return out
}

func (c *compiledConfig) normalReading(temps []float64) (float64, bool) {
	for _, t := range temps {
		if c.NormalRange.Contains(t) {
			return t, true
		}
	}
	return 0, false
}

func (c *compiledConfig) numericConflict(g AreaGroup) (string, bool) {
	temps := readings(g)
	if len(temps) < 2 {
		return "", false
	}
	lo, hi := temps[0], temps[0]
	for _, t := range temps[1:] {
		lo = min(lo, t)
		hi = max(hi, t)
	}
	if hi-lo > c.SpreadThreshold {
		return fmt.Sprintf("Temperature spread conflict in %s: thermal readings range from %.1f°C to %.1f°C.", g.Area, lo, hi), true
	}
	if hi < c.HotspotThreshold {
		return "", false
	}
	if normal, ok := c.normalReading(temps); ok {
		return fmt.Sprintf("Thermal hotspot of %.1f°C in %s contradicts normal range readings (%.1f°C) in the same area.", hi, g.Area, normal), true
	}
	return "", false
}

// hasMoisture looks for non-negated moisture phrases outside the thermal readings
// themselves.
func (c *compiledConfig) hasMoisture(g AreaGroup) bool {
	for _, o := range g.Observations {
		if o.Category == CategoryThermalReading {
			continue
		}
		for _, text := range o.evidence() {
			if c.positive(c.moisture, text) {
				return true
			}
		}
	}
	return false
}

func (c *compiledConfig) moistureConflict(g AreaGroup) (string, bool) {
	if !c.hasMoisture(g) {
		return "", false
	}
	if _, ok := c.normalReading(readings(g)); !ok {
		return "", false
	}
	return fmt.Sprintf("Moisture observed in %s while thermal values include normal range readings.", g.Area), true
}

func (c *compiledConfig) categoricalConflict(g AreaGroup) (string, bool) {
	negated, hot := false, false
	for _, o := range g.Observations {
		for _, text := range o.evidence() {
			if c.negated(text) {
				negated = true
			}
			if c.positive(c.hotspot, text) {
				hot = true
			}
		}
	}
	if !negated {
		return "", false
	}
	for _, t := range readings(g) {
		if t >= c.HotspotThreshold {
			hot = true
		}
	}
	if !hot && !c.hasMoisture(g) {
		return "", false
	}
	return fmt.Sprintf("Inspection states no damage in %s but hotspot or moisture indicators are present.", g.Area), true
}
