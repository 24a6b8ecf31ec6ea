package kb

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/model"
)

var ErrComponentNotFound = errors.New("component not found")

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventComponentDamaged EventType = iota
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type        EventType
	Index       int
	Name        string
	DamageLevel float64
}

// ComponentStore owns every component of a system. Components are addressed
// by their index, which is also their row in a resource's system matrix, so
// insertion order is preserved and never changes.
type ComponentStore struct {
	mu sync.RWMutex

	components []*core.StandardComponent
	byName     map[string][]int
	byType     map[string][]int

	subs    map[int]func(Event)
	nextSub int
}

// NewComponentStore constructs an empty store.
func NewComponentStore() *ComponentStore {
	return &ComponentStore{
		byName: make(map[string][]int),
		byType: make(map[string][]int),
		subs:   make(map[int]func(Event)),
	}
}

// Add appends a component and returns its index. Several components may
// share a name; they are told apart by locality.
func (s *ComponentStore) Add(c *core.StandardComponent) (int, error) {
	if c == nil || c.Name() == "" {
		return -1, fmt.Errorf("nil or unnamed component")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.components)
	s.components = append(s.components, c)
	s.byName[c.Name()] = append(s.byName[c.Name()], idx)
	s.byType[c.Type()] = append(s.byType[c.Type()], idx)
	return idx, nil
}

// Len returns the number of components.
func (s *ComponentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.components)
}

// At returns the component at index i, or nil if out of range.
func (s *ComponentStore) At(i int) *core.StandardComponent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.components) {
		return nil
	}
	return s.components[i]
}

// All returns a snapshot slice of all components in index order.
func (s *ComponentStore) All() []*core.StandardComponent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*core.StandardComponent(nil), s.components...)
}

// IndexOf finds the component with the given name and locality.
func (s *ComponentStore) IndexOf(name string, loc model.Locality) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, i := range s.byName[name] {
		if s.components[i].Locality() == loc {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in locality %v", ErrComponentNotFound, name, loc)
}

// IndicesByName returns the indices of components with the given name.
func (s *ComponentStore) IndicesByName(name string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.byName[name]...)
}

// IndicesByType returns the indices of components built from a library type.
func (s *ComponentStore) IndicesByType(typ string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.byType[typ]...)
}

// IndicesInLocality returns the indices of components that start or end in
// the locality.
func (s *ComponentStore) IndicesInLocality(id int) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []int
	for i, c := range s.components {
		if c.Locality().Contains(id) {
			res = append(res, i)
		}
	}
	return res
}

// ApplyDamage sets the initial damage level of component i and notifies
// subscribers.
func (s *ComponentStore) ApplyDamage(i int, level float64) error {
	s.mu.RLock()
	if i < 0 || i >= len(s.components) {
		s.mu.RUnlock()
		return fmt.Errorf("%w: index %d", ErrComponentNotFound, i)
	}
	c := s.components[i]
	subs := make([]func(Event), 0, len(s.subs))
	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		subs = append(subs, s.subs[id])
	}
	s.mu.RUnlock()

	if err := c.SetInitialDamageLevel(level); err != nil {
		return err
	}
	event := Event{Type: EventComponentDamaged, Index: i, Name: c.Name(), DamageLevel: level}
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Subscribe registers a callback for store events. Callbacks run in
// subscription order. The returned function removes this callback only and
// may be called more than once.
func (s *ComponentStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
