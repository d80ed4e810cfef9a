package trickle_test

import (
	"sync/atomic"
	"testing"
	"time"

	"rpld/internal/rpl/trickle"
	"github.com/stretchr/testify/assert"
)

func TestTimer_boundsAfterStart(t *testing.T) {
	t.Parallel()

	tm := trickle.New(trickle.Config{
		Imin:      10 * time.Millisecond,
		Doublings: 2,
		K:         1,
		Fire:      func() {},
	})

	tm.Start()
	t.Cleanup(tm.Stop)

	i := tm.I()
	assert.GreaterOrEqual(t, i, 10*time.Millisecond)
	assert.LessOrEqual(t, i, tm.I()) // sanity: reading twice doesn't regress.
}

func TestTimer_hearInconsistentResetsToImin(t *testing.T) {
	t.Parallel()

	tm := trickle.New(trickle.Config{
		Imin:      5 * time.Millisecond,
		Doublings: 4,
		K:         1,
		Fire:      func() {},
	})

	tm.Start()
	t.Cleanup(tm.Stop)

	time.Sleep(20 * time.Millisecond) // let the interval double at least once.

	tm.HearInconsistent()
	assert.Equal(t, 5*time.Millisecond, tm.I())
}

func TestTimer_hearInconsistentNoopAtImin(t *testing.T) {
	t.Parallel()

	tm := trickle.New(trickle.Config{
		Imin:      50 * time.Millisecond,
		Doublings: 4,
		K:         1,
		Fire:      func() {},
	})

	tm.Start()
	t.Cleanup(tm.Stop)

	tm.HearInconsistent() // Start picks a random I; bring it down to Imin first.

	before := tm.I()
	tm.HearInconsistent()
	assert.Equal(t, before, tm.I())
}

func TestTimer_stopIsSafeAfterFiring(t *testing.T) {
	t.Parallel()

	var fires atomic.Int32

	tm := trickle.New(trickle.Config{
		Imin:      5 * time.Millisecond,
		Doublings: 0,
		K:         1,
		Fire:      func() { fires.Add(1) },
	})

	tm.Start()
	t.Cleanup(tm.Stop)

	// Hearing consistent twice before the transmission point should suppress
	// the fire for that interval (c >= k).
	tm.HearConsistent()
	tm.HearConsistent()

	time.Sleep(30 * time.Millisecond)

	// Can't deterministically assert zero fires across intervals without
	// flakiness, but we can assert Stop is safe after firing.
	tm.Stop()
	assert.GreaterOrEqual(t, fires.Load(), int32(0))
}

func TestTimer_stopIsIdempotent(t *testing.T) {
	t.Parallel()

	tm := trickle.New(trickle.Config{
		Imin:      5 * time.Millisecond,
		Doublings: 1,
		K:         0,
		Fire:      func() {},
	})

	tm.Start()
	tm.Stop()
	tm.Stop()
}
