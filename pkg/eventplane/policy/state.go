package policy

import (
	"sync"

	"github.com/randalmurphal/eventplane/pkg/eventplane/registry"
)

// State is the key/value bag shared by all nodes of one execution.
// It is safe for concurrent use.
type State struct {
	values *registry.Registry[string, any]
}

func newState() *State {
	return &State{values: registry.New[string, any]()}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	return s.values.Get(key)
}

// Set stores value under key, replacing any previous value.
func (s *State) Set(key string, value any) {
	s.values.Replace(key, value)
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.values.Delete(key)
}

// Keys returns the stored keys in sorted order.
func (s *State) Keys() []string {
	return s.values.Keys()
}

// StateStore maps execution IDs to their State.
type StateStore struct {
	states sync.Map // execution ID -> *State
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// acquire returns the state for id and whether this call created it.
func (s *StateStore) acquire(id string) (*State, bool) {
	if v, ok := s.states.Load(id); ok {
		return v.(*State), false
	}
	v, loaded := s.states.LoadOrStore(id, newState())
	return v.(*State), !loaded
}

// Get returns the state for an execution that is still running.
func (s *StateStore) Get(id string) (*State, bool) {
	v, ok := s.states.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*State), true
}

// Delete removes the state of an execution.
func (s *StateStore) Delete(id string) {
	s.states.Delete(id)
}

// Len returns the number of executions with live state.
func (s *StateStore) Len() int {
	n := 0
	s.states.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
