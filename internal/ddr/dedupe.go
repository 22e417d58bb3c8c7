package ddr

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

func tokenSet(text string) map[string]struct{} {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(clean) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b| over the token sets of two texts. Two texts without
// tokens have similarity 0.
func Jaccard(a, b string) float64 {
	return jaccardSets(tokenSet(a), tokenSet(b))
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union keeps the smaller index as root so clusters are keyed by first appearance.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

type partitionKey struct {
	area     string
	category Category
}

// deduplicate merges near-duplicate observations inside each (area, category)
// partition. It returns the surviving observations in first-seen order and the number
// of observations absorbed into another.
func (c *compiledConfig) deduplicate(obs []Observation) ([]Observation, int) {
	if len(obs) == 0 {
		return []Observation{}, 0
	}
	sets := make([]map[string]struct{}, len(obs))
	for i, o := range obs {
		sets[i] = tokenSet(o.Text)
	}

	uf := newUnionFind(len(obs))
	partitions := map[partitionKey][]int{}
	for i, o := range obs {
		key := partitionKey{area: o.Area, category: o.Category}
		for _, j := range partitions[key] {
			if !sameReading(obs[i], obs[j]) {
				continue
			}
			if jaccardSets(sets[i], sets[j]) >= c.JaccardThreshold {
				uf.union(i, j)
			}
		}
		partitions[key] = append(partitions[key], i)
	}

	clusters := map[int][]int{}
	var roots []int
	for i := range obs {
		r := uf.find(i)
		if _, ok := clusters[r]; !ok {
			roots = append(roots, r)
		}
		clusters[r] = append(clusters[r], i)
	}
	sort.Ints(roots)

	out := make([]Observation, 0, len(roots))
	merged := 0
	for _, r := range roots {
		members := clusters[r]
		merged += len(members) - 1
		out = append(out, mergeCluster(obs, members))
	}
	return out, merged
}

func sameReading(a, b Observation) bool {
	if a.Category != CategoryThermalReading {
		return true
	}
	if a.Temperature == nil || b.Temperature == nil {
		return a.Temperature == nil && b.Temperature == nil
	}
	return *a.Temperature == *b.Temperature
}

func mergeCluster(obs []Observation, members []int) Observation {
	best := members[0]
	for _, i := range members[1:] {
		if utf8.RuneCountInString(obs[i].Text) > utf8.RuneCountInString(obs[best].Text) {
			best = i
		}
	}
	rep := obs[best]
	if len(members) == 1 {
		return rep
	}

	seen := map[LineRef]bool{}
	var prov []LineRef
	merged := append([]string(nil), rep.MergedText...)
	for _, i := range members {
		for _, ref := range obs[i].Provenance {
			if !seen[ref] {
				seen[ref] = true
				prov = append(prov, ref)
			}
		}
		if i != best {
			merged = append(merged, obs[i].evidence()...)
		}
	}
	sort.Slice(prov, func(a, b int) bool { return prov[a].less(prov[b]) })
	rep.Provenance = prov
	rep.MergedText = merged
	return rep
}
