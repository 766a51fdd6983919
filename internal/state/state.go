// Package state holds the user inputs that drive discovery and notifies
// subscribers after every change.
package state

import (
	"slices"
	"sync"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
)

// Inputs is everything one discovery run depends on.
type Inputs struct {
	Dataset     discovery.Dataset
	InModel     []causal.CausalVariable
	Constraints causal.Constraints
	Algorithm   causal.Algorithm
}

// Snapshot is an immutable copy of the store contents.
type Snapshot struct {
	Version     uint64
	Dataset     discovery.Dataset
	Variables   []causal.CausalVariable
	InModel     []string
	Constraints causal.Constraints
	Algorithm   causal.Algorithm
	Paused      bool
}

// InModelVariables returns the variables selected for the model, in the
// order of Variables.
func (s Snapshot) InModelVariables() []causal.CausalVariable {
	out := []causal.CausalVariable{}
	for _, v := range s.Variables {
		if slices.Contains(s.InModel, v.ColumnName) {
			out = append(out, v)
		}
	}
	return out
}

// EffectiveAlgorithm is None while auto-run is paused.
func (s Snapshot) EffectiveAlgorithm() causal.Algorithm {
	if s.Paused || s.Algorithm == "" {
		return causal.AlgorithmNone
	}
	return s.Algorithm
}

func (s Snapshot) Inputs() Inputs {
	return Inputs{
		Dataset:     s.Dataset,
		InModel:     s.InModelVariables(),
		Constraints: s.Constraints.Clone(),
		Algorithm:   s.EffectiveAlgorithm(),
	}
}

// Draft is the mutable view handed to Batch.
type Draft struct {
	Dataset     discovery.Dataset
	Variables   []causal.CausalVariable
	InModel     []string
	Constraints causal.Constraints
	Algorithm   causal.Algorithm
	Paused      bool
}

// Store is safe for concurrent use. Mutations are applied one at a time and
// each is followed by exactly one emission to every subscriber, in
// registration order. Subscribers run synchronously and must not mutate the
// store from inside the callback.
type Store struct {
	emitMu sync.Mutex
	mu     sync.RWMutex
	cur    Snapshot
	subs   []subscription
	nextID int
}

type subscription struct {
	id int
	fn func(Snapshot)
}

// New creates a store holding the placeholder dataset and the given
// algorithm.
func New(algorithm causal.Algorithm) *Store {
	return &Store{cur: Snapshot{
		Dataset:   discovery.Dataset{Name: discovery.DefaultDatasetName},
		Algorithm: algorithm,
	}}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool { return sub.id == id })
	}
}

// Batch applies several mutations with a single emission.
func (s *Store) Batch(fn func(*Draft)) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	d := Draft{
		Dataset:     s.cur.Dataset,
		Variables:   slices.Clone(s.cur.Variables),
		InModel:     slices.Clone(s.cur.InModel),
		Constraints: s.cur.Constraints.Clone(),
		Algorithm:   s.cur.Algorithm,
		Paused:      s.cur.Paused,
	}
	fn(&d)
	s.cur = Snapshot{
		Version:     s.cur.Version + 1,
		Dataset:     d.Dataset,
		Variables:   slices.Clone(d.Variables),
		InModel:     slices.Clone(d.InModel),
		Constraints: d.Constraints.Clone(),
		Algorithm:   d.Algorithm,
		Paused:      d.Paused,
	}
	snap := s.cur
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}

func (s *Store) SetDataset(d discovery.Dataset) {
	s.Batch(func(dr *Draft) { dr.Dataset = d })
}

func (s *Store) SetVariables(vars []causal.CausalVariable) {
	s.Batch(func(dr *Draft) { dr.Variables = vars })
}

// SetInModel selects the variables included in the model by column name.
func (s *Store) SetInModel(columns []string) {
	s.Batch(func(dr *Draft) { dr.InModel = columns })
}

// UpdateConstraints replaces the user constraints with fn(current).
func (s *Store) UpdateConstraints(fn func(causal.Constraints) causal.Constraints) {
	s.Batch(func(dr *Draft) { dr.Constraints = fn(dr.Constraints) })
}

func (s *Store) SetAlgorithm(a causal.Algorithm) {
	s.Batch(func(dr *Draft) { dr.Algorithm = a })
}

func (s *Store) SetPaused(paused bool) {
	s.Batch(func(dr *Draft) { dr.Paused = paused })
}
