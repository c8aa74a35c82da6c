package dispatch

import (
	"fmt"
	"math/rand"
)

// Strategy picks which template from a pool goes to the next
// conversation.
type Strategy interface {
	Pick(pool []string) string
}

// NewStrategy builds a named strategy. random is the default;
// sequential cycles through the pool; fixed always sends the first
// entry.
func NewStrategy(name string, seed int64) (Strategy, error) {
	switch name {
	case "", "random":
		return &randomStrategy{rng: rand.New(rand.NewSource(seed))}, nil
	case "sequential":
		return &sequentialStrategy{}, nil
	case "fixed":
		return fixedStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown dispatch strategy %q", name)
	}
}

type randomStrategy struct {
	rng *rand.Rand
}

func (s *randomStrategy) Pick(pool []string) string {
	return pool[s.rng.Intn(len(pool))]
}

type sequentialStrategy struct {
	next int
}

func (s *sequentialStrategy) Pick(pool []string) string {
	t := pool[s.next%len(pool)]
	s.next++
	return t
}

type fixedStrategy struct{}

func (fixedStrategy) Pick(pool []string) string {
	return pool[0]
}
