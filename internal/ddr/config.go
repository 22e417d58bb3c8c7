package ddr

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ConfigVersion identifies the default rule tables. Bump it whenever a default table
// or threshold changes so stored reports can be traced to the rules that produced them.
const ConfigVersion = "2026.11"

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid ddr config: %s: %s", e.Field, e.Reason)
}

type Zone struct {
	Area     string   `yaml:"area" toml:"area"`
	Keywords []string `yaml:"keywords" toml:"keywords"`
}

// TagRule maps keyword phrases to a category. Rules are evaluated in slice order,
// so the order of Config.TagRules is the category precedence.
type TagRule struct {
	Category Category `yaml:"category" toml:"category"`
	Keywords []string `yaml:"keywords" toml:"keywords"`
	Negation string   `yaml:"negation,omitempty" toml:"negation,omitempty"`
}

type Range struct {
	Min float64 `yaml:"min" toml:"min"`
	Max float64 `yaml:"max" toml:"max"`
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

type Config struct {
	Version              string         `yaml:"version" toml:"version"`
	Zones                []Zone         `yaml:"zones" toml:"zones"`
	DefaultArea          string         `yaml:"default_area" toml:"default_area"`
	TagRules             []TagRule      `yaml:"tag_rules" toml:"tag_rules"`
	ThermalPattern       string         `yaml:"thermal_pattern" toml:"thermal_pattern"`
	BulletPattern        string         `yaml:"bullet_pattern" toml:"bullet_pattern"`
	StructuralPatterns   []string       `yaml:"structural_patterns" toml:"structural_patterns"`
	NoiseChars           string         `yaml:"noise_chars" toml:"noise_chars"`
	MinInformativeWords  int            `yaml:"min_informative_words" toml:"min_informative_words"`
	MinTextLength        int            `yaml:"min_text_length" toml:"min_text_length"`
	JaccardThreshold     float64        `yaml:"jaccard_threshold" toml:"jaccard_threshold"`
	SpreadThreshold      float64        `yaml:"spread_threshold" toml:"spread_threshold"`
	HotspotThreshold     float64        `yaml:"hotspot_threshold" toml:"hotspot_threshold"`
	NormalRange          Range          `yaml:"normal_range" toml:"normal_range"`
	ConflictOrder        []ConflictKind `yaml:"conflict_order" toml:"conflict_order"`
	ConflictBandCap      int            `yaml:"conflict_band_cap" toml:"conflict_band_cap"`
	MoisturePhrases      []string       `yaml:"moisture_phrases" toml:"moisture_phrases"`
	HotspotPhrases       []string       `yaml:"hotspot_phrases" toml:"hotspot_phrases"`
	NegationPattern      string         `yaml:"negation_pattern" toml:"negation_pattern"`
	StructuralKeywords   []string       `yaml:"structural_keywords" toml:"structural_keywords"`
	ConfidenceSaturation int            `yaml:"confidence_saturation" toml:"confidence_saturation"`
}

func DefaultConfig() Config {
	return Config{
		Version: ConfigVersion,
		Zones: []Zone{
			{Area: "Roof", Keywords: []string{"roof", "terrace", "parapet"}},
			{Area: "Wall", Keywords: []string{"wall", "mold", "mould"}},
			{Area: "Ceiling", Keywords: []string{"ceiling"}},
			{Area: "Bathroom", Keywords: []string{"bathroom", "shower"}},
			{Area: "Terrace", Keywords: []string{"terrace", "drainage"}},
			{Area: "Kitchen", Keywords: []string{"kitchen"}},
			{Area: "Bedroom", Keywords: []string{"bedroom"}},
			{Area: "Living Room", Keywords: []string{"living room", "hall"}},
			{Area: "Balcony", Keywords: []string{"balcony"}},
			{Area: "Staircase", Keywords: []string{"staircase", "stairs"}},
			{Area: "Water Tank", Keywords: []string{"water tank", "overhead tank"}},
		},
		DefaultArea: "General",
		TagRules: []TagRule{
			{Category: CategoryCause, Keywords: []string{
				"likely due to", "possible cause", "caused by", "because", "root cause",
				"due to", "attributed to", "source of",
			}},
			{Category: CategoryAction, Keywords: []string{
				"recommend", "suggest", "advise", "should be", "needs to be",
				"next step", "action required",
			}},
			{Category: CategoryIssue, Keywords: []string{
				"leak", "damp", "crack", "seepage", "stain", "fungus", "mold", "mould",
				"moisture", "corrosion", "rust", "delamination", "blister", "efflorescence",
				"spalling", "hotspot", "hot spot", "damage", "peeling", "ingress",
			}, Negation: `\bno\b[^,;.]{0,20}?\b(crack|leak|seepage|damp|damage|moisture|issue|stain)`},
		},
		ThermalPattern: `(?i)(?:^|[^\d.])(-?\d+(?:\.\d+)?)\s*(?:°\s*c\b|º\s*c\b|deg(?:rees?)?\.?\s*c\b|celsius\b|℃|c\b)`,
		BulletPattern:  `(?i)^(?:[-*•·–—>#|]+|\(?\d{1,3}[.)]|\(?[a-z][.)])\s+`,
		StructuralPatterns: []string{
			`(?i)^(inspection date|thermal scan date|scan date|date of inspection|property( address| name| id)?|report (no\.?|number|id)|client( name)?|inspector( name)?|prepared (by|for))\s*[:#-]`,
			`(?i)^page \d+( of \d+)?$`,
			`^[\p{L}\s/&-]{1,40}:$`,
		},
		NoiseChars:           " \t•·*#>|_=~\u200b\ufeff",
		MinInformativeWords:  3,
		MinTextLength:        8,
		JaccardThreshold:     0.6,
		SpreadThreshold:      8,
		HotspotThreshold:     38,
		NormalRange:          Range{Min: 20, Max: 32},
		ConflictOrder:        []ConflictKind{ConflictNumeric, ConflictMoisture, ConflictCategorical},
		ConflictBandCap:      2,
		MoisturePhrases:      []string{"moisture", "damp", "leak", "seepage", "mold", "mould", "fungus", "wet", "water ingress", "efflorescence"},
		HotspotPhrases:       []string{"hotspot", "hot spot", "overheat", "elevated temperature"},
		NegationPattern:      `\bno\b[^,;.]{0,20}?\b(damage|crack|issue|leak|seepage|damp|moisture|overheat|defect)`,
		StructuralKeywords:   []string{"structural crack", "major crack", "spalling", "exposed reinforcement", "sagging", "collapse", "unsafe", "active leak"},
		ConfidenceSaturation: 3,
	}
}

// LoadConfig overlays a YAML or TOML rules file onto DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	blob, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read ddr config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(blob, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(blob, &cfg)
	default:
		return Config{}, &ConfigError{Field: "path", Reason: fmt.Sprintf("unsupported config format %q", filepath.Ext(path))}
	}
	if err != nil {
		return Config{}, &ConfigError{Field: "path", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	_, err := compile(c)
	return err
}

type compiledZone struct {
	area  string
	match *regexp.Regexp
}

type compiledRule struct {
	category Category
	match    *regexp.Regexp
	negation *regexp.Regexp
}

type compiledConfig struct {
	Config
	zones      []compiledZone
	rules      []compiledRule
	thermal    *regexp.Regexp
	bullet     *regexp.Regexp
	structural []*regexp.Regexp
	negation   *regexp.Regexp
	moisture   *regexp.Regexp
	hotspot    *regexp.Regexp
	structure  *regexp.Regexp
}

func compile(c Config) (*compiledConfig, error) {
	cc := &compiledConfig{Config: c}
	cc.ConflictOrder = append([]ConflictKind(nil), c.ConflictOrder...)

	if strings.TrimSpace(c.DefaultArea) == "" {
		return nil, &ConfigError{Field: "default_area", Reason: "must not be empty"}
	}
	if len(c.Zones) == 0 {
		return nil, &ConfigError{Field: "zones", Reason: "at least one zone is required"}
	}
	for i, z := range c.Zones {
		field := fmt.Sprintf("zones[%d]", i)
		if strings.TrimSpace(z.Area) == "" {
			return nil, &ConfigError{Field: field, Reason: "area must not be empty"}
		}
		kws := lowerAll(z.Keywords)
		if len(kws) == 0 {
			return nil, &ConfigError{Field: field, Reason: "keywords must not be empty"}
		}
		cc.zones = append(cc.zones, compiledZone{area: z.Area, match: phraseMatcher(kws)})
	}

	seen := map[Category]bool{}
	for i, r := range c.TagRules {
		field := fmt.Sprintf("tag_rules[%d]", i)
		switch r.Category {
		case CategoryCause, CategoryAction, CategoryIssue:
		default:
			return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("category %q cannot be keyword driven", r.Category)}
		}
		if seen[r.Category] {
			return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("duplicate category %q", r.Category)}
		}
		seen[r.Category] = true
		kws := lowerAll(r.Keywords)
		if len(kws) == 0 {
			return nil, &ConfigError{Field: field, Reason: "keywords must not be empty"}
		}
		rule := compiledRule{category: r.Category, match: phraseMatcher(kws)}
		if strings.TrimSpace(r.Negation) != "" {
			re, err := regexp.Compile(r.Negation)
			if err != nil {
				return nil, &ConfigError{Field: field + ".negation", Reason: err.Error()}
			}
			rule.negation = re
		}
		cc.rules = append(cc.rules, rule)
	}
	for _, cat := range []Category{CategoryCause, CategoryAction, CategoryIssue} {
		if !seen[cat] {
			return nil, &ConfigError{Field: "tag_rules", Reason: fmt.Sprintf("missing rule for %q", cat)}
		}
	}

	var err error
	if cc.thermal, err = regexp.Compile(c.ThermalPattern); err != nil {
		return nil, &ConfigError{Field: "thermal_pattern", Reason: err.Error()}
	}
	if cc.thermal.NumSubexp() < 1 {
		return nil, &ConfigError{Field: "thermal_pattern", Reason: "must capture the numeric value"}
	}
	if cc.bullet, err = regexp.Compile(c.BulletPattern); err != nil {
		return nil, &ConfigError{Field: "bullet_pattern", Reason: err.Error()}
	}
	for i, p := range c.StructuralPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("structural_patterns[%d]", i), Reason: err.Error()}
		}
		cc.structural = append(cc.structural, re)
	}
	if cc.negation, err = regexp.Compile(c.NegationPattern); err != nil || strings.TrimSpace(c.NegationPattern) == "" {
		reason := "must not be empty"
		if err != nil {
			reason = err.Error()
		}
		return nil, &ConfigError{Field: "negation_pattern", Reason: reason}
	}

	phrases := []struct {
		field string
		in    []string
		out   **regexp.Regexp
	}{
		{"moisture_phrases", c.MoisturePhrases, &cc.moisture},
		{"hotspot_phrases", c.HotspotPhrases, &cc.hotspot},
		{"structural_keywords", c.StructuralKeywords, &cc.structure},
	}
	for _, ph := range phrases {
		kws := lowerAll(ph.in)
		if len(kws) == 0 {
			return nil, &ConfigError{Field: ph.field, Reason: "must not be empty"}
		}
		*ph.out = phraseMatcher(kws)
	}

	if c.MinInformativeWords < 1 {
		return nil, &ConfigError{Field: "min_informative_words", Reason: "must be at least 1"}
	}
	if c.MinTextLength < 1 {
		return nil, &ConfigError{Field: "min_text_length", Reason: "must be at least 1"}
	}
	if !finite(c.JaccardThreshold) || c.JaccardThreshold <= 0 || c.JaccardThreshold > 1 {
		return nil, &ConfigError{Field: "jaccard_threshold", Reason: "must be in (0, 1]"}
	}
	if !finite(c.SpreadThreshold) || c.SpreadThreshold <= 0 {
		return nil, &ConfigError{Field: "spread_threshold", Reason: "must be positive"}
	}
	if !finite(c.NormalRange.Min) || !finite(c.NormalRange.Max) || c.NormalRange.Min >= c.NormalRange.Max {
		return nil, &ConfigError{Field: "normal_range", Reason: "min must be below max"}
	}
	if !finite(c.HotspotThreshold) || c.HotspotThreshold <= c.NormalRange.Max {
		return nil, &ConfigError{Field: "hotspot_threshold", Reason: "must be above normal_range.max"}
	}
	if c.ConflictBandCap < 1 {
		return nil, &ConfigError{Field: "conflict_band_cap", Reason: "must be at least 1"}
	}
	if c.ConfidenceSaturation < 1 {
		return nil, &ConfigError{Field: "confidence_saturation", Reason: "must be at least 1"}
	}

	kinds := map[ConflictKind]bool{}
	for _, k := range c.ConflictOrder {
		switch k {
		case ConflictNumeric, ConflictMoisture, ConflictCategorical:
		default:
			return nil, &ConfigError{Field: "conflict_order", Reason: fmt.Sprintf("unknown check %q", k)}
		}
		if kinds[k] {
			return nil, &ConfigError{Field: "conflict_order", Reason: fmt.Sprintf("duplicate check %q", k)}
		}
		kinds[k] = true
	}
	if len(kinds) != 3 {
		return nil, &ConfigError{Field: "conflict_order", Reason: "must list numeric, moisture and categorical exactly once"}
	}
	return cc, nil
}

// phraseMatcher matches any of the phrases starting at a word boundary. Callers match
// against lowercased text.
func phraseMatcher(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)`)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
