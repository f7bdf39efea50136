// Package chance provides the injectable random source behind every
// probabilistic decision (QA injection, claim fairness bypass).
package chance

import (
	"math/rand/v2"
	"sync"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Rand is a goroutine-safe seeded source.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a source with a fixed seed. Equal seeds yield equal sequences.
func New(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom returns a source seeded from the runtime's entropy.
func NewRandom() *Rand {
	return New(rand.Uint64())
}

func (s *Rand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Roll reports whether an event with probability p happens.
func Roll(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Pick returns an index in [0, n).
func Pick(src Source, n int) int {
	if n <= 1 {
		return 0
	}
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// Sequence replays fixed values in order and then repeats the last one.
// An empty Sequence always yields 0.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next]
	if s.next < len(s.values)-1 {
		s.next++
	}
	return v
}
