// internal/game/dice.go
package game

import (
	"math/rand"
	"sync"
	"time"
)

// Dice produces a pair of six-sided die faces.
type Dice interface {
	Roll() (int, int)
}

type randomDice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDice returns fair dice seeded from the clock.
func NewRandomDice() Dice {
	return &randomDice{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (d *randomDice) Roll() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(6) + 1, d.rng.Intn(6) + 1
}
