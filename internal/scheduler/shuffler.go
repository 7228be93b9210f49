package scheduler

import (
	"math/rand"
	"sync"
	"time"
)

// Shuffler permutes the candidate slot order once per run. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type identityShuffler struct{}

func (identityShuffler) Shuffle(int, func(i, j int)) {}

// IdentityShuffler keeps candidate slots in calendar order, for deterministic runs.
func IdentityShuffler() Shuffler {
	return identityShuffler{}
}

type lockedShuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomShuffler returns a goroutine-safe shuffler. A zero seed seeds from the clock.
func NewRandomShuffler(seed int64) Shuffler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedShuffler{rnd: rand.New(rand.NewSource(seed))}
}

func (s *lockedShuffler) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(n, swap)
}
