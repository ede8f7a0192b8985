package state

import "sync"

// Reducer is a pure transition from one state to the next.
type Reducer[S, A any] func(S, A) S

// Store owns a state value and serializes every transition through its reducer.
type Store[S, A any] struct {
	// dispatchMu orders transitions and their notifications
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	state  S
	reduce Reducer[S, A]

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(S)
}

// NewStore creates a store holding initial.
func NewStore[S, A any](initial S, reduce Reducer[S, A]) *Store[S, A] {
	return &Store[S, A]{
		state:  initial,
		reduce: reduce,
		subs:   make(map[int]func(S)),
	}
}

// State returns the current state.
func (s *Store[S, A]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies action and notifies subscribers with the resulting state.
// Subscribers see states in transition order and run on the dispatching
// goroutine. They may call State but must not call Dispatch.
func (s *Store[S, A]) Dispatch(action A) S {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	next := s.reduce(s.state, action)
	s.state = next
	s.mu.Unlock()

	for _, fn := range s.subscribers() {
		fn(next)
	}
	return next
}

// Subscribe registers fn for state changes and returns a function that
// removes it. Calling the returned function more than once is safe.
func (s *Store[S, A]) Subscribe(fn func(S)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store[S, A]) subscribers() []func(S) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	fns := make([]func(S), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
