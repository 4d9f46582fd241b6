package pose

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
)

type entry struct {
	pose    Pose
	updated time.Time
	pinned  bool
}

// Store holds the latest pose per entity, as fed by a scene or a simulator.
// Entries older than the max age are reported unavailable; pinned entries never
// expire.
type Store struct {
	clock  clock.Clock
	maxAge time.Duration

	mu       sync.RWMutex
	entities map[string]entry
}

// NewStore creates a store. A zero maxAge disables expiry.
func NewStore(clk clock.Clock, maxAge time.Duration) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:    clk,
		maxAge:   maxAge,
		entities: make(map[string]entry),
	}
}

// Set records the current pose of an entity.
func (s *Store) Set(entity string, p Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pinned := s.entities[entity].pinned
	s.entities[entity] = entry{pose: p, updated: s.clock.Now(), pinned: pinned}
}

// Pin records a pose that never goes stale, such as a fixed arm base.
func (s *Store) Pin(entity string, p Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity] = entry{pose: p, updated: s.clock.Now(), pinned: true}
}

// Remove forgets an entity.
func (s *Store) Remove(entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, entity)
}

// Pose returns the full pose of an entity.
func (s *Store) Pose(entity string) (Pose, error) {
	s.mu.RLock()
	e, ok := s.entities[entity]
	s.mu.RUnlock()

	if !ok {
		return Pose{}, unavailable(entity, "unknown entity")
	}
	if !e.pinned && s.maxAge > 0 {
		if age := s.clock.Since(e.updated); age > s.maxAge {
			return Pose{}, unavailable(entity, "stale for "+age.String())
		}
	}
	return e.pose, nil
}

// Position implements Provider.
func (s *Store) Position(entity string) (r3.Vector, error) {
	p, err := s.Pose(entity)
	if err != nil {
		return r3.Vector{}, err
	}
	return p.Position, nil
}

// Entities returns a snapshot of all known poses, stale ones included.
func (s *Store) Entities() map[string]Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Pose, len(s.entities))
	for name, e := range s.entities {
		out[name] = e.pose
	}
	return out
}
