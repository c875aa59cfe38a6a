package valve

import "sync"

// Guarded holds a value behind a mutex with copy-in/copy-out access.
//
// The lock is held only for the copy, never across hardware calls or I/O.
// Values that implement Clone() T are deep-copied on both sides.
type Guarded[T any] struct {
	mu sync.Mutex
	v  T
}

// NewGuarded returns a Guarded initialised to v.
func NewGuarded[T any](v T) *Guarded[T] {
	return &Guarded[T]{v: clone(v)}
}

// Load returns a copy of the current value.
func (g *Guarded[T]) Load() T {
	g.mu.Lock()
	defer g.mu.Unlock()
	return clone(g.v)
}

// Store replaces the value with a copy of v.
func (g *Guarded[T]) Store(v T) {
	v = clone(v)
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

// Update applies fn to the value under the lock. fn must be short and must
// not block or touch another Guarded.
func (g *Guarded[T]) Update(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.v)
}

func clone[T any](v T) T {
	if c, ok := any(v).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	return v
}

// Store is the shared state of one valve: the last manual request, the
// automatic-mode configuration and the observed physical state.
//
// Each record has its own lock and no code path holds two at once.
type Store struct {
	requested *Guarded[requestedRecord]
	config    *Guarded[ControlConfig]
	observed  *Guarded[ObservedState]
}

// NewStore returns a Store with all flags false, angle 0 and no error.
func NewStore() *Store {
	return &Store{
		requested: NewGuarded(requestedRecord{}),
		config:    NewGuarded(ControlConfig{}),
		observed:  NewGuarded(ObservedState{}),
	}
}

// requestedRecord pairs the request with a write counter so the control
// loop can tell a rewritten request from one it already handled.
type requestedRecord struct {
	ctl     RequestedControl
	version uint64
}

// Requested returns a snapshot of the last manual request.
func (s *Store) Requested() RequestedControl { return s.requested.Load().ctl }

// RequestedVersion returns the last manual request together with the number
// of writes so far. Both come from the same critical section.
func (s *Store) RequestedVersion() (RequestedControl, uint64) {
	r := s.requested.Load()
	return r.ctl, r.version
}

// SetRequested overwrites the manual request. Last writer wins.
func (s *Store) SetRequested(r RequestedControl) {
	s.requested.Update(func(rec *requestedRecord) {
		rec.ctl = r
		rec.version++
	})
}

// Config returns a snapshot of the control configuration.
func (s *Store) Config() ControlConfig { return s.config.Load() }

// SetConfig overwrites the control configuration.
func (s *Store) SetConfig(c ControlConfig) {
	c.TrimSchedule()
	s.config.Store(c)
}

// Observed returns a snapshot of the observed state.
func (s *Store) Observed() ObservedState { return s.observed.Load() }

// UpdateObserved mutates the observed state in place under its lock.
func (s *Store) UpdateObserved(fn func(*ObservedState)) { s.observed.Update(fn) }
