package vision

import (
	"fmt"
	"sync"
	"time"
)

// IdentifyingLabel is shown for a face that has never reached a confident vote.
const IdentifyingLabel = "Identifying..."

type DisplayState int

const (
	StateIdentifying DisplayState = iota
	StateNamed
)

func (s DisplayState) String() string {
	if s == StateNamed {
		return "named"
	}
	return "identifying"
}

// Observation is one per-frame recognition result.
type Observation struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// TrackedFace is a snapshot of one face's temporal state.
type TrackedFace struct {
	ID       string        `json:"id"`
	Box      BoundingBox   `json:"box"`
	LastSeen time.Time     `json:"lastSeen"`
	History  []Observation `json:"history"`
	State    DisplayState  `json:"-"`
	// Name and Similarity hold the last Named decision ("Unknown" included).
	Name       string  `json:"name,omitempty"`
	Similarity float64 `json:"similarity"`
	// Confidence is the vote share of the most frequent name at the last update.
	Confidence float64 `json:"confidence"`
}

// Label is the text to display for the face.
func (f TrackedFace) Label() string {
	if f.State != StateNamed {
		return IdentifyingLabel
	}
	return f.Name
}

type TrackerConfig struct {
	HistorySize         int
	ConfidenceThreshold float64
	MemoryDuration      time.Duration
	// IDPrefix is prepended to generated face IDs.
	IDPrefix string
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		HistorySize:         5,
		ConfidenceThreshold: 0.65,
		MemoryDuration:      3 * time.Second,
	}
}

// Tracker associates per-frame recognitions with faces by spatial continuity
// and smooths identities with a majority vote over a short history.
type Tracker struct {
	mu     sync.Mutex
	cfg    TrackerConfig
	faces  []*TrackedFace // creation order
	nextID int
}

func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	return &Tracker{cfg: cfg}
}

// Sweep drops faces not seen within MemoryDuration and returns their IDs.
func (t *Tracker) Sweep(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string
	kept := t.faces[:0]
	for _, f := range t.faces {
		if now.Sub(f.LastSeen) > t.cfg.MemoryDuration {
			evicted = append(evicted, f.ID)
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(t.faces); i++ {
		t.faces[i] = nil
	}
	t.faces = kept
	return evicted
}

// Update records one observation for the face nearest the box and returns
// the face's new state.
func (t *Tracker) Update(box BoundingBox, name string, similarity float64, now time.Time) TrackedFace {
	t.mu.Lock()
	defer t.mu.Unlock()

	face := t.associate(box)
	if face == nil {
		t.nextID++
		face = &TrackedFace{ID: fmt.Sprintf("%sface_%d", t.cfg.IDPrefix, t.nextID)}
		t.faces = append(t.faces, face)
	}

	face.Box = box
	face.LastSeen = now

	face.History = append(face.History, Observation{Name: name, Similarity: similarity})
	if over := len(face.History) - t.cfg.HistorySize; over > 0 {
		face.History = append(face.History[:0:0], face.History[over:]...)
	}

	winner, count, meanSim := majority(face.History)
	face.Confidence = float64(count) / float64(len(face.History))

	if face.Confidence >= t.cfg.ConfidenceThreshold {
		face.State = StateNamed
		face.Name = winner
		face.Similarity = meanSim
	}
	// Below threshold: an identifying face stays identifying and a named face
	// keeps its previous name.

	return face.snapshot()
}

// associate returns the first face, in creation order, whose center lies
// within (w + w_prev)/4 of the box center.
func (t *Tracker) associate(box BoundingBox) *TrackedFace {
	for _, f := range t.faces {
		radius := float64(box.Width+f.Box.Width) / 4
		if CenterDistance(box, f.Box) < radius {
			return f
		}
	}
	return nil
}

// Faces returns snapshots of every live face in creation order.
func (t *Tracker) Faces() []TrackedFace {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TrackedFace, 0, len(t.faces))
	for _, f := range t.faces {
		out = append(out, f.snapshot())
	}
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.faces)
}

// Reset forgets all faces. ID numbering continues.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faces = nil
}

func (f *TrackedFace) snapshot() TrackedFace {
	s := *f
	s.History = append([]Observation(nil), f.History...)
	return s
}

// majority returns the most frequent name, its count and the mean similarity
// of its observations. Ties go to the name that appears first in history.
func majority(history []Observation) (string, int, float64) {
	counts := make(map[string]int, len(history))
	sums := make(map[string]float64, len(history))
	order := make([]string, 0, len(history))

	for _, o := range history {
		if _, seen := counts[o.Name]; !seen {
			order = append(order, o.Name)
		}
		counts[o.Name]++
		sums[o.Name] += o.Similarity
	}

	winner := ""
	best := 0
	for _, name := range order {
		if counts[name] > best {
			best = counts[name]
			winner = name
		}
	}
	if best == 0 {
		return "", 0, 0
	}
	return winner, best, sums[winner] / float64(best)
}
