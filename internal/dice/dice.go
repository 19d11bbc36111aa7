// Package dice implements the uniform dice roller the game master and
// players use for checks. Rollers carry their own randomness source so
// tests can inject a deterministic one.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

var (
	ErrInvalidDiceCount = errors.New("number of dice must be a positive integer")
	ErrInvalidSides     = errors.New("number of sides must be a positive integer")
)

// Result holds the individual outcomes of one roll and their sum.
type Result struct {
	NumDice  int   `json:"numDice"`
	NumSides int   `json:"numSides"`
	Rolls    []int `json:"rolls"`
	Total    int   `json:"total"`
}

// String formats the result in NdM notation, e.g. "2d6: [3 5] (total 8)".
func (r Result) String() string {
	return fmt.Sprintf("%dd%d: %v (total %d)", r.NumDice, r.NumSides, r.Rolls, r.Total)
}

// Roller produces uniformly distributed rolls from an injected source.
// Safe for concurrent use; a mutex serializes access to the underlying
// source, which is not.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller returns a roller seeded from crypto/rand.
func NewRoller() *Roller {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// Degraded but still usable seed.
		return NewRollerWithSource(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:])) ^ 0x5eed))
	}
	return NewRollerWithSource(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

// NewRollerWithSource returns a roller over the given source.
func NewRollerWithSource(src rand.Source) *Roller {
	return &Roller{rng: rand.New(src)}
}

// Roll rolls numDice independent dice with numSides sides each. Every
// outcome lies in [1, numSides]. Both arguments must be positive.
func (r *Roller) Roll(numDice, numSides int) (Result, error) {
	if numDice <= 0 {
		return Result{}, ErrInvalidDiceCount
	}
	if numSides <= 0 {
		return Result{}, ErrInvalidSides
	}

	rolls := make([]int, numDice)
	total := 0
	r.mu.Lock()
	for i := range rolls {
		rolls[i] = r.rng.Intn(numSides) + 1
		total += rolls[i]
	}
	r.mu.Unlock()

	return Result{
		NumDice:  numDice,
		NumSides: numSides,
		Rolls:    rolls,
		Total:    total,
	}, nil
}
