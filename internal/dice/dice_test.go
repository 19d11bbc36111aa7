package dice

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
)

func TestRollBoundsAndTotal(t *testing.T) {
	roller := NewRoller()

	for i := 0; i < 100; i++ {
		result, err := roller.Roll(3, 6)
		if err != nil {
			t.Fatalf("Roll returned error: %v", err)
		}
		if len(result.Rolls) != 3 {
			t.Fatalf("expected 3 rolls, got %d", len(result.Rolls))
		}
		sum := 0
		for _, roll := range result.Rolls {
			if roll < 1 || roll > 6 {
				t.Fatalf("roll %d out of range [1,6]", roll)
			}
			sum += roll
		}
		if result.Total != sum {
			t.Fatalf("total = %d, want %d", result.Total, sum)
		}
	}
}

func TestRollDeterministicWithSource(t *testing.T) {
	first := NewRollerWithSource(rand.NewSource(42))
	second := NewRollerWithSource(rand.NewSource(42))

	a, err := first.Roll(4, 20)
	if err != nil {
		t.Fatalf("Roll returned error: %v", err)
	}
	b, err := second.Roll(4, 20)
	if err != nil {
		t.Fatalf("Roll returned error: %v", err)
	}

	if a.Total != b.Total {
		t.Fatalf("totals differ for identical seeds: %d vs %d", a.Total, b.Total)
	}
	for i := range a.Rolls {
		if a.Rolls[i] != b.Rolls[i] {
			t.Fatalf("roll %d differs: %d vs %d", i, a.Rolls[i], b.Rolls[i])
		}
	}
}

func TestRollRejectsInvalidArguments(t *testing.T) {
	roller := NewRoller()

	tcs := []struct {
		numDice  int
		numSides int
		wantErr  error
	}{
		{0, 6, ErrInvalidDiceCount},
		{-1, 6, ErrInvalidDiceCount},
		{2, 0, ErrInvalidSides},
		{2, -4, ErrInvalidSides},
	}

	for _, tc := range tcs {
		_, err := roller.Roll(tc.numDice, tc.numSides)
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("Roll(%d, %d) error = %v, want %v", tc.numDice, tc.numSides, err, tc.wantErr)
		}
	}
}

func TestResultString(t *testing.T) {
	roller := NewRollerWithSource(rand.NewSource(1))
	result, err := roller.Roll(2, 6)
	if err != nil {
		t.Fatalf("Roll returned error: %v", err)
	}
	if got := result.String(); got == "" {
		t.Fatal("String returned empty")
	} else if got[:4] != "2d6:" {
		t.Fatalf("String = %q, want 2d6: prefix", got)
	}
}

func TestOneSidedDieAlwaysOne(t *testing.T) {
	roller := NewRoller()
	result, err := roller.Roll(5, 1)
	if err != nil {
		t.Fatalf("Roll returned error: %v", err)
	}
	if result.Total != 5 {
		t.Fatalf("total = %d, want 5", result.Total)
	}
}

// One roller serves every request handler and queue worker, so Roll
// must tolerate parallel callers. Run under -race.
func TestRollConcurrent(t *testing.T) {
	roller := NewRoller()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				result, err := roller.Roll(2, 6)
				if err != nil {
					t.Errorf("Roll returned error: %v", err)
					return
				}
				if result.Total < 2 || result.Total > 12 {
					t.Errorf("total %d out of range [2,12]", result.Total)
					return
				}
			}
		}()
	}
	wg.Wait()
}
