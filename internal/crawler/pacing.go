package crawler

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleeper waits for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer owns every deliberate delay of the crawl: recovery waits, courtesy
// jitter between pages and between pairs, and navigation retry backoff.
type Pacer struct {
	sleeper Sleeper
	rng     *rand.Rand
}

// NewPacer creates a pacer with wall-clock sleeps and a time-seeded RNG.
func NewPacer() *Pacer {
	seed := uint64(time.Now().UnixNano())
	return NewPacerWith(timerSleeper{}, rand.New(rand.NewPCG(seed, seed>>1)))
}

// NewPacerWith creates a pacer with the given sleeper and RNG.
func NewPacerWith(s Sleeper, rng *rand.Rand) *Pacer {
	if s == nil {
		s = timerSleeper{}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	return &Pacer{sleeper: s, rng: rng}
}

// Sleep waits for d.
func (p *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	return p.sleeper.Sleep(ctx, d)
}

// Jitter waits for a duration drawn uniformly from [min, max].
func (p *Pacer) Jitter(ctx context.Context, min, max time.Duration) error {
	return p.sleeper.Sleep(ctx, p.Draw(min, max))
}

// Draw returns a duration drawn uniformly from [min, max].
func (p *Pacer) Draw(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int64N(int64(max-min)+1))
}
