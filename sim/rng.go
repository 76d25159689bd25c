package sim

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// RollSource supplies an unbounded sequence of two-dice rolls.
type RollSource interface {
	Roll() Roll
}

// === Dice ===

// Dice is a seedable pair of six-sided dice.
//
// Thread-safety: NOT thread-safe. Each Generate run owns its own Dice.
type Dice struct {
	seed int64
	rng  *rand.Rand
}

// NewDice creates dice seeded with seed.
//
// The same non-zero seed always yields the same roll sequence. A zero seed
// means "no explicit seed": one is drawn from crypto/rand, so the sequence is
// NOT reproducible. Seed reports the value actually used.
func NewDice(seed int64) (*Dice, error) {
	if seed == 0 {
		s, err := NewSeed()
		if err != nil {
			return nil, err
		}
		seed = s
	}
	return &Dice{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}, nil
}

// Roll throws both dice and returns their sum.
func (d *Dice) Roll() Roll {
	return rollDie(d.rng, 6) + rollDie(d.rng, 6)
}

// Seed returns the seed the dice were built from.
func (d *Dice) Seed() int64 {
	return d.seed
}

// rollDie rolls a single die with the provided number of sides.
func rollDie(rng *rand.Rand, sides int) int {
	return rng.Intn(sides) + 1
}

// NewSeed generates a non-zero random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("read random seed: %w", err)
		}
		if s := int64(binary.LittleEndian.Uint64(b[:])); s != 0 {
			return s, nil
		}
	}
}

// === SequenceSource ===

// SequenceSource replays a fixed list of rolls, in order.
// Reading past the end panics.
type SequenceSource struct {
	rolls []Roll
	next  int
}

// NewSequenceSource returns a RollSource that yields rolls in order.
func NewSequenceSource(rolls ...Roll) *SequenceSource {
	return &SequenceSource{rolls: rolls}
}

// Roll returns the next recorded roll.
func (s *SequenceSource) Roll() Roll {
	if s.next >= len(s.rolls) {
		panic(fmt.Sprintf("sequence source exhausted after %d rolls", len(s.rolls)))
	}
	r := s.rolls[s.next]
	s.next++
	return r
}

// Consumed returns how many rolls have been drawn.
func (s *SequenceSource) Consumed() int {
	return s.next
}

// CycleSource repeats a fixed list of rolls forever.
type CycleSource struct {
	rolls []Roll
	next  int
}

// NewCycleSource returns a RollSource cycling through rolls. rolls must be non-empty.
func NewCycleSource(rolls ...Roll) *CycleSource {
	if len(rolls) == 0 {
		panic("cycle source needs at least one roll")
	}
	return &CycleSource{rolls: rolls}
}

// Roll returns the next roll in the cycle.
func (c *CycleSource) Roll() Roll {
	r := c.rolls[c.next%len(c.rolls)]
	c.next++
	return r
}
