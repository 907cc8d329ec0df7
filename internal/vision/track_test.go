package vision

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func box(x, y int) BoundingBox {
	return BoundingBox{X: x, Y: y, Width: 100, Height: 100}
}

func TestTracker_ConsistentNameIsNamedImmediately(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	f := tr.Update(box(100, 100), "Alice", 0.8, t0)
	if f.State != StateNamed || f.Label() != "Alice" {
		t.Fatalf("state = %v label = %q, want Named Alice", f.State, f.Label())
	}
	if f.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", f.Confidence)
	}

	for i := 1; i < 5; i++ {
		f = tr.Update(box(100+i, 100), "Alice", 0.8, t0.Add(time.Duration(i)*100*time.Millisecond))
	}
	if f.Confidence != 1 || f.Label() != "Alice" {
		t.Errorf("after 5 frames: confidence %v label %q", f.Confidence, f.Label())
	}
	if math.Abs(f.Similarity-0.8) > 1e-9 {
		t.Errorf("similarity = %v, want 0.8", f.Similarity)
	}
}

func TestTracker_AlternatingNamesStayIdentifying(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	// A face fed A first is named on its unanimous first vote, so seed a face
	// that has never been named with ABAB.
	face := &TrackedFace{ID: "face_1", Box: box(200, 200), LastSeen: t0}
	for _, n := range []string{"A", "B", "A", "B"} {
		face.History = append(face.History, Observation{Name: n, Similarity: 0.5})
	}
	tr.faces = []*TrackedFace{face}
	tr.nextID = 1

	f := tr.Update(box(200, 200), "A", 0.5, t0.Add(time.Second))
	if math.Abs(f.Confidence-0.6) > 1e-9 {
		t.Errorf("confidence = %v, want 0.6", f.Confidence)
	}
	if f.State != StateIdentifying || f.Label() != IdentifyingLabel {
		t.Errorf("state = %v label %q, want Identifying", f.State, f.Label())
	}
}

func TestTracker_TieGoesToFirstSeen(t *testing.T) {
	winner, count, mean := majority([]Observation{
		{"B", 0.2}, {"A", 0.9}, {"A", 0.7}, {"B", 0.4},
	})
	if winner != "B" || count != 2 {
		t.Errorf("majority = %q x%d, want B x2", winner, count)
	}
	if math.Abs(mean-0.3) > 1e-9 {
		t.Errorf("mean = %v, want 0.3", mean)
	}
}

func TestTracker_NamedLabelIsSticky(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	now := t0
	step := func(name string) TrackedFace {
		now = now.Add(100 * time.Millisecond)
		return tr.Update(box(300, 300), name, 0.7, now)
	}

	for i := 0; i < 3; i++ {
		step("Alice")
	}
	// [A A A B B] -> 0.6, keeps Alice
	step("Bob")
	f := step("Bob")
	if f.Label() != "Alice" {
		t.Errorf("label = %q, want sticky Alice", f.Label())
	}
	if math.Abs(f.Confidence-0.6) > 1e-9 {
		t.Errorf("confidence = %v, want 0.6", f.Confidence)
	}
	// [A A B B B] -> 0.6 Bob, still Alice
	f = step("Bob")
	if f.Label() != "Alice" {
		t.Errorf("label = %q, want sticky Alice", f.Label())
	}
	// [A B B B B] -> 0.8 Bob
	f = step("Bob")
	if f.Label() != "Bob" {
		t.Errorf("label = %q, want Bob", f.Label())
	}
}

func TestTracker_UnknownIsANamedState(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	f := tr.Update(box(0, 0), UnknownName, 0, t0)
	if f.State != StateNamed || f.Label() != UnknownName {
		t.Errorf("state %v label %q, want Named Unknown", f.State, f.Label())
	}
}

func TestTracker_HistoryIsBoundedFIFO(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	names := []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7"}

	var f TrackedFace
	for i, n := range names {
		f = tr.Update(box(50, 50), n, float64(i), t0.Add(time.Duration(i)*time.Millisecond))
	}
	if len(f.History) != 5 {
		t.Fatalf("history length = %d, want 5", len(f.History))
	}
	if f.History[0].Name != "n3" || f.History[4].Name != "n7" {
		t.Errorf("history = %v, want n3..n7", f.History)
	}
}

func TestTracker_Association(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	a := tr.Update(box(100, 100), "A", 0.9, t0)
	// Center moved 40px; radius (100+100)/4 = 50.
	a2 := tr.Update(box(140, 100), "A", 0.9, t0.Add(time.Millisecond))
	if a2.ID != a.ID {
		t.Errorf("nearby detection got new ID %q, want %q", a2.ID, a.ID)
	}
	if a2.Box != box(140, 100) {
		t.Errorf("box not updated: %+v", a2.Box)
	}

	// Exactly at the radius is not a match.
	b := tr.Update(box(190, 100), "B", 0.9, t0.Add(2*time.Millisecond))
	if b.ID == a.ID {
		t.Error("detection at the radius should create a new face")
	}
	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2", tr.Len())
	}
	if a.ID != "face_1" || b.ID != "face_2" {
		t.Errorf("IDs = %q %q, want face_1 face_2", a.ID, b.ID)
	}
}

func TestTracker_AdaptiveRadius(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	small := BoundingBox{X: 0, Y: 0, Width: 20, Height: 20}
	tr.Update(small, "A", 0.9, t0)

	// 15px away: radius for two 20px boxes is 10.
	moved := BoundingBox{X: 15, Y: 0, Width: 20, Height: 20}
	f := tr.Update(moved, "A", 0.9, t0)
	if f.ID == "face_1" {
		t.Error("small faces should use a small association radius")
	}
}

// Two faces crossing paths: the second face's detection lands inside the first
// face's radius and is attributed to it. Known limitation of proximity matching.
func TestTracker_CrossingFacesMisassociate(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	alice := tr.Update(box(0, 0), "Alice", 0.9, t0)
	bob := tr.Update(box(300, 0), "Bob", 0.9, t0)
	if alice.ID == bob.ID {
		t.Fatal("distinct faces should get distinct IDs")
	}

	// Bob walks to where Alice was last seen.
	got := tr.Update(box(20, 0), "Bob", 0.9, t0.Add(100*time.Millisecond))
	if got.ID != alice.ID {
		t.Fatalf("expected misassociation to %q, got %q", alice.ID, got.ID)
	}
	if got.History[len(got.History)-1].Name != "Bob" {
		t.Error("Bob's observation should land in Alice's history")
	}
	// [Alice, Bob] is a 0.5 vote; Alice stays displayed.
	if got.Label() != "Alice" {
		t.Errorf("label = %q, want Alice", got.Label())
	}
}

func TestTracker_Sweep(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	f := tr.Update(box(10, 10), "A", 0.9, t0)

	if ev := tr.Sweep(t0.Add(3 * time.Second)); len(ev) != 0 {
		t.Errorf("face evicted at exactly memoryDuration: %v", ev)
	}
	ev := tr.Sweep(t0.Add(3*time.Second + time.Millisecond))
	if len(ev) != 1 || ev[0] != f.ID {
		t.Errorf("evicted = %v, want [%s]", ev, f.ID)
	}
	if len(tr.Faces()) != 0 {
		t.Error("evicted face still reported")
	}

	// A returning person gets a fresh ID.
	g := tr.Update(box(10, 10), "A", 0.9, t0.Add(4*time.Second))
	if g.ID == f.ID {
		t.Error("expected fresh ID after eviction")
	}
}

func TestTracker_SweepKeepsRecentFaces(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	tr.Update(box(0, 0), "Old", 0.9, t0)
	tr.Update(box(500, 500), "New", 0.9, t0.Add(2*time.Second))

	tr.Sweep(t0.Add(4 * time.Second))
	faces := tr.Faces()
	if len(faces) != 1 || faces[0].Name != "New" {
		t.Errorf("faces after sweep = %+v", faces)
	}
}

func TestTracker_SnapshotIsDetached(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	f := tr.Update(box(0, 0), "A", 0.9, t0)
	f.History[0].Name = "mutated"

	if tr.Faces()[0].History[0].Name != "A" {
		t.Error("snapshot shares history with tracker state")
	}
}

func TestTracker_IDPrefix(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.IDPrefix = "cam1/"
	f := NewTracker(cfg).Update(box(0, 0), "A", 0.9, t0)
	if f.ID != "cam1/face_1" {
		t.Errorf("ID = %q", f.ID)
	}
}
