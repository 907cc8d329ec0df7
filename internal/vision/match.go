package vision

import (
	"math"
	"sort"
)

// UnknownName is reported when no person clears the match threshold.
const UnknownName = "Unknown"

// Embedding is a feature vector from one extractor version.
type Embedding = []float32

// Gallery maps a person name to the embeddings enrolled for them.
type Gallery map[string][]Embedding

// Names returns the gallery's person names in sorted order.
func (g Gallery) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size is the total number of embeddings.
func (g Gallery) Size() int {
	n := 0
	for _, embs := range g {
		n += len(embs)
	}
	return n
}

// Merge appends other's embeddings into g.
func (g Gallery) Merge(other Gallery) {
	for name, embs := range other {
		g[name] = append(g[name], embs...)
	}
}

// MatchResult carries the selected person plus every person's mean score.
type MatchResult struct {
	Name       string             `json:"recognizedName"`
	Similarity float64            `json:"similarity"`
	All        map[string]float64 `json:"allSimilarities"`
}

func (r MatchResult) Known() bool {
	return r.Name != UnknownName
}

// Matcher scores a query against a gallery by mean cosine similarity per person.
type Matcher struct {
	Threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	return &Matcher{Threshold: threshold}
}

// Match accepts the best person only if its mean similarity is strictly above
// the threshold. Equal scores resolve to the lexicographically smallest name.
func (m *Matcher) Match(query Embedding, gallery Gallery) MatchResult {
	res := MatchResult{Name: UnknownName, All: make(map[string]float64, len(gallery))}

	bestName := ""
	best := math.Inf(-1)
	for _, name := range gallery.Names() {
		embs := gallery[name]
		if len(embs) == 0 {
			continue
		}
		var sum float64
		for _, e := range embs {
			sum += CosineSimilarity(query, e)
		}
		mean := sum / float64(len(embs))
		res.All[name] = mean

		if mean > best {
			best = mean
			bestName = name
		}
	}

	if bestName != "" && best > m.Threshold {
		res.Name = bestName
		res.Similarity = best
	}
	return res
}

// CosineSimilarity returns dot(a,b)/(|a||b|); mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
