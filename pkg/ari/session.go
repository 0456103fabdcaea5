package ari

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aricluster/internal/models"
	"aricluster/pkg/query"
)

// SessionID identifies one interactive analysis session.
type SessionID uuid.UUID

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id SessionID) String() string { return uuid.UUID(id).String() }

// TemplateID identifies the reference space a session's map is aligned to.
type TemplateID uuid.UUID

// NewTemplateID returns a fresh random template id.
func NewTemplateID() TemplateID { return TemplateID(uuid.New()) }

func (id TemplateID) String() string { return uuid.UUID(id).String() }

// SessionState tracks how far a session has progressed.
type SessionState int

const (
	// StateIdle means no analysis has been run yet.
	StateIdle SessionState = iota

	// StateComputed means the pipeline has run but no threshold has
	// been applied.
	StateComputed

	// StateDisplayed means a cluster list is on display and can be
	// edited.
	StateDisplayed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputed:
		return "computed"
	case StateDisplayed:
		return "displayed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotComputed is returned when an operation requires a completed
	// pipeline run.
	ErrNotComputed = errors.New("ari: no analysis has been computed")

	// ErrNotDisplayed is returned when an operation requires a
	// thresholded cluster list on display.
	ErrNotDisplayed = errors.New("ari: no cluster list on display")
)

// Session is one interactive analysis: a pipeline result together with the
// currently displayed cluster list, the selected voxel and a bounded
// undo/redo history. All methods are safe for concurrent use.
type Session struct {
	ID       SessionID
	Template TemplateID

	mu       sync.Mutex
	state    SessionState
	result   *Result
	clusters []query.Cluster
	gamma    float64
	selected [3]int
	history  *History
	logger   *zap.Logger
}

// NewSession returns an idle session bound to a template space.
func NewSession(template TemplateID, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ID:       NewSessionID(),
		Template: template,
		history:  NewHistory(),
		logger:   logger,
	}
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the pipeline result, or nil before Compute.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Clusters returns the cluster list currently on display.
func (s *Session) Clusters() []query.Cluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]query.Cluster, len(s.clusters))
	copy(out, s.clusters)
	return out
}

// Gamma returns the TDP threshold of the displayed list.
func (s *Session) Gamma() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gamma
}

// SelectedVoxel returns the coordinates of the current selection.
func (s *Session) SelectedVoxel() (x, y, z int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[0], s.selected[1], s.selected[2]
}

// Compute runs the pipeline on a map and resets any prior display state and
// history.
func (s *Session) Compute(ctx context.Context, sm *models.StatMap, inMask []bool, params Params) error {
	res, err := Run(ctx, sm, inMask, params, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	s.clusters = nil
	s.gamma = 0
	s.selected = [3]int{}
	s.history = NewHistory()
	s.state = StateComputed
	s.logger.Info("session computed",
		zap.Stringer("session", s.ID),
		zap.Float64("min_tdp", res.MinTDP))
	return nil
}

// Select moves the selection to the voxel at (x,y,z), which must lie inside
// the mask.
func (s *Session) Select(x, y, z int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return ErrNotComputed
	}
	if !s.result.Mask.Contains(x, y, z) {
		return fmt.Errorf("ari: voxel (%d,%d,%d) outside the mask", x, y, z)
	}
	s.selected = [3]int{x, y, z}
	return nil
}

// Threshold answers a TDP threshold query, makes the answer the displayed
// list and records it in the history.
func (s *Session) Threshold(gamma float64) ([]query.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return nil, ErrNotComputed
	}

	s.clusters = s.result.Engine.AnswerQuery(gamma)
	s.gamma = gamma
	s.state = StateDisplayed
	s.pushSnapshot()
	s.logger.Info("threshold applied",
		zap.Stringer("session", s.ID),
		zap.Float64("gamma", gamma),
		zap.Int("clusters", len(s.clusters)))
	return s.clusters, nil
}

// Change grows or shrinks the displayed cluster containing the in-mask
// voxel v by the requested TDP change and records the new list in the
// history.
func (s *Session) Change(v int, tdpchg float64) ([]query.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisplayed {
		return nil, ErrNotDisplayed
	}

	out, err := s.result.Engine.ChangeQuery(v, tdpchg, s.clusters)
	if err != nil {
		return nil, err
	}
	s.clusters = out
	s.pushSnapshot()
	s.logger.Info("cluster changed",
		zap.Stringer("session", s.ID),
		zap.Int("voxel", v),
		zap.Float64("tdp_change", tdpchg),
		zap.Int("clusters", len(out)))
	return out, nil
}

// ChangeAt is Change addressed by voxel coordinates. The voxel becomes the
// selection on success.
func (s *Session) ChangeAt(x, y, z int, tdpchg float64) ([]query.Cluster, error) {
	s.mu.Lock()
	if s.state != StateDisplayed {
		s.mu.Unlock()
		return nil, ErrNotDisplayed
	}
	v := s.result.Mask.NodeAt(x, y, z)
	s.mu.Unlock()
	if v < 0 {
		return nil, fmt.Errorf("ari: voxel (%d,%d,%d) outside the mask", x, y, z)
	}

	out, err := s.Change(v, tdpchg)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.selected = [3]int{x, y, z}
	s.mu.Unlock()
	return out, nil
}

// Undo restores the previous display state.
func (s *Session) Undo() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.history.Undo()
	if err != nil {
		return Snapshot{}, err
	}
	s.restore(snap)
	return snap, nil
}

// Redo restores the next display state.
func (s *Session) Redo() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.history.Redo()
	if err != nil {
		return Snapshot{}, err
	}
	s.restore(snap)
	return snap, nil
}

// History exposes the session's undo/redo buffer.
func (s *Session) History() *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// pushSnapshot records the current display state; the caller holds the
// mutex.
func (s *Session) pushSnapshot() {
	s.history.Push(Snapshot{
		Clusters:      s.clusters,
		Gamma:         s.gamma,
		SelectedVoxel: s.selected,
	})
}

func (s *Session) restore(snap Snapshot) {
	s.clusters = snap.Clusters
	s.gamma = snap.Gamma
	s.selected = snap.SelectedVoxel
	s.logger.Info("state restored",
		zap.Stringer("session", s.ID),
		zap.Int("step", s.history.Step()),
		zap.Int("states", s.history.Len()))
}

// Registry tracks live sessions by id. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
	logger   *zap.Logger
}

// NewRegistry returns an empty session registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[SessionID]*Session),
		logger:   logger,
	}
}

// Create starts a new idle session in a template space and registers it.
func (r *Registry) Create(template TemplateID) *Session {
	s := NewSession(template, r.logger)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.logger.Info("session created",
		zap.Stringer("session", s.ID),
		zap.Stringer("template", template))
	return s
}

// Get looks up a session by id.
func (r *Registry) Get(id SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ByTemplate returns all sessions bound to a template space.
func (r *Registry) ByTemplate(template TemplateID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.Template == template {
			out = append(out, s)
		}
	}
	return out
}

// Delete removes a session and reports whether it existed.
func (r *Registry) Delete(id SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
