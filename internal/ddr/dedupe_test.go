package ddr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueObs(area, text string, pos int) Observation {
	return Observation{
		Source:     SourceInspection,
		Category:   CategoryIssue,
		Area:       area,
		Text:       text,
		Provenance: []LineRef{{Source: SourceInspection, Position: pos}},
	}
}

func thermalObs(area, text string, temp float64, pos int) Observation {
	return Observation{
		Source:      SourceThermal,
		Category:    CategoryThermalReading,
		Area:        area,
		Text:        text,
		Temperature: &temp,
		Provenance:  []LineRef{{Source: SourceThermal, Position: pos}},
	}
}

func TestJaccardIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Roof terrace shows damp patches", "damp patches on roof terrace near outlet"},
		{"", "anything"},
		{"Wall crack.", "wall crack"},
		{"a b c", "d e f"},
	}
	for _, p := range pairs {
		assert.Equal(t, Jaccard(p[0], p[1]), Jaccard(p[1], p[0]))
	}
	assert.Equal(t, 1.0, Jaccard("Wall crack.", "wall, crack"))
	assert.Equal(t, 0.0, Jaccard("", ""))
}

func TestDeduplicateMergesPunctuationVariants(t *testing.T) {
	cc := mustCompile(t, DefaultConfig())
	in := []Observation{
		issueObs("Ceiling", "Ceiling plaster shows water seepage stains near the corner.", 1),
		issueObs("Ceiling", "Ceiling plaster shows water seepage stains near the corner", 2),
	}
	out, merged := cc.deduplicate(in)
	require.Len(t, out, 1)
	assert.Equal(t, 1, merged)
	assert.Equal(t, in[0].Text, out[0].Text)
	assert.Equal(t, []LineRef{{SourceInspection, 1}, {SourceInspection, 2}}, out[0].Provenance)
	assert.Equal(t, []string{in[1].Text}, out[0].MergedText)
}

func TestDeduplicateIsTransitive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JaccardThreshold = 0.5
	cc := mustCompile(t, cfg)
	// a~b and b~c clear 0.5 while a~c alone does not.
	a := issueObs("Wall", "damp patch on wall", 1)
	b := issueObs("Wall", "damp patch on wall near window frame", 2)
	c := issueObs("Wall", "patch on wall near window frame edge", 3)
	require.Less(t, Jaccard(a.Text, c.Text), 0.5)
	require.GreaterOrEqual(t, Jaccard(a.Text, b.Text), 0.5)
	require.GreaterOrEqual(t, Jaccard(b.Text, c.Text), 0.5)

	out, merged := cc.deduplicate([]Observation{a, b, c})
	require.Len(t, out, 1)
	assert.Equal(t, 2, merged)
	assert.Len(t, out[0].Provenance, 3)
}

func TestDeduplicateRespectsPartitions(t *testing.T) {
	cc := mustCompile(t, DefaultConfig())
	in := []Observation{
		issueObs("Roof", "Damp patches near the outlet", 1),
		issueObs("Wall", "Damp patches near the outlet", 2),
		{
			Source:     SourceInspection,
			Category:   CategoryAction,
			Area:       "Roof",
			Text:       "Damp patches near the outlet",
			Provenance: []LineRef{{Source: SourceInspection, Position: 3}},
		},
	}
	out, merged := cc.deduplicate(in)
	assert.Len(t, out, 3)
	assert.Zero(t, merged)
}

func TestDeduplicateKeepsDistinctTemperatures(t *testing.T) {
	cc := mustCompile(t, DefaultConfig())
	in := []Observation{
		thermalObs("Wall", "Wall surface reading 27.8 C", 27.8, 1),
		thermalObs("Wall", "Wall surface reading 29.4 C", 29.4, 2),
		thermalObs("Wall", "Wall surface reading 27.8 C.", 27.8, 3),
	}
	out, merged := cc.deduplicate(in)
	require.Len(t, out, 2)
	assert.Equal(t, 1, merged)
	assert.Equal(t, 27.8, *out[0].Temperature)
	assert.Equal(t, 29.4, *out[1].Temperature)
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	cc := mustCompile(t, DefaultConfig())
	in := []Observation{
		issueObs("Roof", "Roof terrace shows damp patches near the north parapet.", 1),
		issueObs("Wall", "Bathroom wall has mold growth", 2),
		issueObs("Roof", "Roof terrace shows damp patches near the north parapet", 3),
		issueObs("Roof", "Seepage marks visible around the drain outlet", 4),
		thermalObs("Roof", "Roof terrace reading 38.6 C", 38.6, 1),
	}
	once, _ := cc.deduplicate(in)
	twice, merged := cc.deduplicate(once)
	assert.Zero(t, merged)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second pass changed output (-once +twice):\n%s", diff)
	}
}

func TestDeduplicateFirstSeenOrder(t *testing.T) {
	cc := mustCompile(t, DefaultConfig())
	in := []Observation{
		issueObs("Wall", "Hairline crack above the window", 1),
		issueObs("Roof", "Roof slab shows seepage marks", 2),
		issueObs("Wall", "Hairline crack above the window lintel", 3),
	}
	out, _ := cc.deduplicate(in)
	require.Len(t, out, 2)
	assert.Equal(t, "Hairline crack above the window lintel", out[0].Text)
	assert.Equal(t, "Roof slab shows seepage marks", out[1].Text)
}
