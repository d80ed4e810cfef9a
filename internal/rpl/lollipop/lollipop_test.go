package lollipop_test

import (
	"testing"

	"rpld/internal/rpl/lollipop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, v int) (c lollipop.Counter) {
	t.Helper()

	c, err := lollipop.New(v)
	require.NoError(t, err)

	return c
}

func TestCounter_Compare(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		a, b int
		want int
	}{
		{name: "linear_greater", a: 240, b: 5, want: 1},
		{name: "restart_less", a: 250, b: 5, want: -1},
		{name: "restart_wrap_boundary", a: 255, b: 0, want: -1},
		{name: "restart_wrap_boundary_reverse", a: 0, b: 255, want: 1},
		{name: "linear_small_gap", a: 0, b: 6, want: -1},
		{name: "circular_order", a: 128, b: 140, want: -1},
		{name: "circular_vs_linear", a: 127, b: 140, want: 1},
		{name: "equal", a: 240, b: 240, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a, b := mustNew(t, tc.a), mustNew(t, tc.b)
			assert.Equal(t, tc.want, sign(a.Compare(b)), "%d vs %d", tc.a, tc.b)
		})
	}
}

func sign(v int) (s int) {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

func TestCounter_Add(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		start int
		delta int
		want  int
	}{
		{name: "linear_stays_linear", start: 110, delta: 10, want: 120},
		{name: "linear_wraps_within_linear", start: 120, delta: 20, want: 12},
		{name: "circular_wraps_around", start: 250, delta: 20, want: 14},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := mustNew(t, tc.start)
			got := c.Add(tc.delta)
			assert.Equal(t, tc.want, got.Val())
		})
	}
}

func TestCounter_Inc(t *testing.T) {
	t.Parallel()

	c := mustNew(t, 14)
	got := c.Inc()
	assert.Equal(t, 15, got.Val())
}

func TestNew_outOfRange(t *testing.T) {
	t.Parallel()

	_, err := lollipop.New(-1)
	assert.Error(t, err)

	_, err = lollipop.New(256)
	assert.Error(t, err)
}

func TestNewDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lollipop.MaxVal-lollipop.SequenceWindow, lollipop.NewDefault().Val())
}

// incomparable distances within the same region report equal, minimizing
// state churn; a pair straddling the linear/circular boundary is always
// decisive, no matter how far apart.
func TestCounter_Compare_incomparable(t *testing.T) {
	t.Parallel()

	a := mustNew(t, 10)
	b := mustNew(t, 50)
	assert.Equal(t, 0, a.Compare(b))
}
