package dice

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
)

// cryptoSource implements Source using crypto/rand. It holds no state and is
// safe for concurrent use.
type cryptoSource struct{}

// NewCryptoSource returns the production randomness Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn returns a uniformly distributed int in [0, n).
//
// Precondition: n > 0.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("dice: Intn precondition violated: n must be > 0, got %d", n))
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand.Reader failing means the OS entropy source is broken;
		// there is no meaningful recovery for a game roll.
		panic(fmt.Sprintf("dice: crypto rand failed: %v", err))
	}
	return int(v.Int64())
}

// ScriptedSource replays a fixed sequence of Intn results, wrapping around when
// exhausted. It makes combat resolution deterministic for tests: the same
// script against the same combatants reproduces an identical turn log.
//
// Values are clamped into [0, n) at read time so a script can be written in
// terms of desired die faces (value = face - 1) without tracking each call's n.
type ScriptedSource struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewScriptedSource creates a ScriptedSource replaying values in order.
//
// Precondition: values must be non-empty.
func NewScriptedSource(values ...int) *ScriptedSource {
	if len(values) == 0 {
		panic("dice: NewScriptedSource requires at least one value")
	}
	vs := make([]int, len(values))
	copy(vs, values)
	return &ScriptedSource{values: vs}
}

// Intn returns the next scripted value clamped into [0, n).
//
// Precondition: n > 0.
func (s *ScriptedSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("dice: Intn precondition violated: n must be > 0, got %d", n))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	if v < 0 {
		v = 0
	}
	if v >= n {
		v = n - 1
	}
	return v
}
