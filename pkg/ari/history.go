package ari

import (
	"errors"

	"aricluster/pkg/query"
)

// historyCapacity bounds the number of retained snapshots; the oldest state
// is evicted when a new one is pushed at capacity.
const historyCapacity = 5

var (
	// ErrNoHistory is returned when navigation is attempted before any
	// state has been recorded.
	ErrNoHistory = errors.New("ari: no history available")

	// ErrEarliestState is returned by Undo at the oldest retained state.
	ErrEarliestState = errors.New("ari: already at the earliest state in memory")

	// ErrLatestState is returned by Redo at the most recent state.
	ErrLatestState = errors.New("ari: already at the most recent state")
)

// Snapshot is one recorded display state: the cluster list together with the
// voxel the user had selected when the state was produced.
type Snapshot struct {
	// Clusters is a deep copy of the displayed cluster list
	Clusters []query.Cluster

	// Gamma is the TDP threshold the list was produced at
	Gamma float64

	// SelectedVoxel holds the x, y, z coordinates of the selection
	SelectedVoxel [3]int
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Clusters = make([]query.Cluster, len(s.Clusters))
	for i, cl := range s.Clusters {
		c.Clusters[i] = cl.Clone()
	}
	return c
}

// History is a bounded undo/redo buffer of display states. Pushing while
// positioned back in the past overwrites the state after the cursor and
// truncates the redo tail.
type History struct {
	snaps []Snapshot
	step  int
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{step: -1}
}

// Len returns the number of retained snapshots.
func (h *History) Len() int { return len(h.snaps) }

// Step returns the cursor position, -1 when empty.
func (h *History) Step() int { return h.step }

// Current returns the snapshot at the cursor.
func (h *History) Current() (Snapshot, bool) {
	if h.step < 0 {
		return Snapshot{}, false
	}
	return h.snaps[h.step], true
}

// Push records a new state as a deep copy and moves the cursor to it. When
// the cursor sits behind the newest state the redo tail is discarded; at
// capacity the oldest state is evicted.
func (h *History) Push(s Snapshot) {
	s = s.clone()
	if h.step < len(h.snaps)-1 {
		h.snaps[h.step+1] = s
		h.snaps = h.snaps[:h.step+2]
	} else {
		if len(h.snaps) >= historyCapacity {
			copy(h.snaps, h.snaps[1:])
			h.snaps = h.snaps[:len(h.snaps)-1]
		}
		h.snaps = append(h.snaps, s)
	}
	h.step = len(h.snaps) - 1
}

// Undo moves the cursor one state back and returns that snapshot.
func (h *History) Undo() (Snapshot, error) {
	if len(h.snaps) == 0 {
		return Snapshot{}, ErrNoHistory
	}
	if h.step <= 0 {
		return Snapshot{}, ErrEarliestState
	}
	h.step--
	return h.snaps[h.step], nil
}

// Redo moves the cursor one state forward and returns that snapshot.
func (h *History) Redo() (Snapshot, error) {
	if len(h.snaps) == 0 {
		return Snapshot{}, ErrNoHistory
	}
	if h.step >= len(h.snaps)-1 {
		return Snapshot{}, ErrLatestState
	}
	h.step++
	return h.snaps[h.step], nil
}
