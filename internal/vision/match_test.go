package vision

import (
	"math"
	"math/rand"
	"testing"
)

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, expected: 1},
		{name: "scaled", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, expected: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, expected: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, expected: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, expected: 0},
		{name: "empty", a: nil, b: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		v := randomVector(rng, 512)
		if got := CosineSimilarity(v, v); math.Abs(got-1) > 1e-5 {
			t.Fatalf("self similarity = %v", got)
		}
	}
}

func TestMatcher_EnrolledPersonMatchesExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	v := randomVector(rng, 512)
	gallery := Gallery{
		"Alice": {v, v, v},
		"Bob":   {randomVector(rng, 512), randomVector(rng, 512)},
	}

	res := NewMatcher(0.4).Match(v, gallery)
	if res.Name != "Alice" {
		t.Fatalf("Name = %q, want Alice", res.Name)
	}
	if math.Abs(res.Similarity-1) > 1e-5 {
		t.Errorf("Similarity = %v, want 1", res.Similarity)
	}
	if _, ok := res.All["Bob"]; !ok {
		t.Error("expected Bob's score to be reported")
	}
	if res.All["Alice"] != res.Similarity {
		t.Error("selected person's score should equal the reported similarity")
	}
}

func TestMatcher_BelowThresholdIsUnknown(t *testing.T) {
	query := []float32{1, 0}
	// cos = 0.35
	bob := []float32{0.35, float32(math.Sqrt(1 - 0.35*0.35))}

	res := NewMatcher(0.4).Match(query, Gallery{"Bob": {bob}})
	if res.Name != UnknownName {
		t.Errorf("Name = %q, want Unknown", res.Name)
	}
	if res.Similarity != 0 {
		t.Errorf("Similarity = %v, want 0", res.Similarity)
	}
	if math.Abs(res.All["Bob"]-0.35) > 1e-6 {
		t.Errorf("All[Bob] = %v, want 0.35", res.All["Bob"])
	}
	if res.Known() {
		t.Error("Known() should be false")
	}
}

func TestMatcher_ThresholdIsStrict(t *testing.T) {
	query := []float32{1, 0}
	at := []float32{0.4, float32(math.Sqrt(1 - 0.4*0.4))}

	res := NewMatcher(CosineSimilarity(query, at)).Match(query, Gallery{"Eve": {at}})
	if res.Name != UnknownName {
		t.Errorf("score equal to threshold must not match, got %q", res.Name)
	}
}

func TestMatcher_MeanPerPerson(t *testing.T) {
	query := []float32{1, 0}
	gallery := Gallery{
		// mean of 1 and 0 = 0.5
		"Carol": {{1, 0}, {0, 1}},
		// single 0.45
		"Dave": {{0.45, float32(math.Sqrt(1 - 0.45*0.45))}},
	}

	res := NewMatcher(0.4).Match(query, gallery)
	if res.Name != "Carol" {
		t.Errorf("Name = %q, want Carol", res.Name)
	}
	if math.Abs(res.Similarity-0.5) > 1e-6 {
		t.Errorf("Similarity = %v, want 0.5", res.Similarity)
	}
}

func TestMatcher_SkipsEmptyPersons(t *testing.T) {
	res := NewMatcher(0.4).Match([]float32{1, 0}, Gallery{"Ghost": nil, "Fay": {{1, 0}}})
	if res.Name != "Fay" {
		t.Errorf("Name = %q, want Fay", res.Name)
	}
	if _, ok := res.All["Ghost"]; ok {
		t.Error("persons without embeddings should not be scored")
	}
}

func TestMatcher_EmptyGallery(t *testing.T) {
	res := NewMatcher(0.4).Match([]float32{1, 0}, Gallery{})
	if res.Name != UnknownName || res.Similarity != 0 || len(res.All) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMatcher_OrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	names := []string{"Ann", "Ben", "Cid", "Dee", "Eli", "Fox"}
	query := randomVector(rng, 64)

	base := Gallery{}
	for _, n := range names {
		base[n] = [][]float32{randomVector(rng, 64), randomVector(rng, 64)}
	}
	// Make two persons tie exactly.
	base["Eli"] = [][]float32{query}
	base["Ben"] = [][]float32{query}

	want := NewMatcher(0.1).Match(query, base)
	if want.Name != "Ben" {
		t.Fatalf("tie should resolve to Ben, got %q", want.Name)
	}

	for i := 0; i < 20; i++ {
		perm := rng.Perm(len(names))
		g := Gallery{}
		for _, p := range perm {
			g[names[p]] = base[names[p]]
		}
		got := NewMatcher(0.1).Match(query, g)
		if got.Name != want.Name || got.Similarity != want.Similarity {
			t.Fatalf("permutation %v changed result: %+v vs %+v", perm, got, want)
		}
	}
}

func TestGallery_Helpers(t *testing.T) {
	g := Gallery{"b": {{1}}, "a": {{1}, {2}}}
	if names := g.Names(); names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v", names)
	}
	if g.Size() != 3 {
		t.Errorf("Size = %d", g.Size())
	}
	g.Merge(Gallery{"a": {{3}}, "c": {{4}}})
	if len(g["a"]) != 3 || len(g["c"]) != 1 {
		t.Errorf("Merge result %v", g)
	}
}
