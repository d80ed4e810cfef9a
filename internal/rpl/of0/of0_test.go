package of0_test

import (
	"net/netip"
	"testing"
	"time"

	"rpld/internal/rpl/lollipop"
	"rpld/internal/rpl/of0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func version(v int) (c lollipop.Counter) {
	c, _ = lollipop.New(v)

	return c
}

func TestComputeRankIncrease(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(256*3), of0.ComputeRankIncrease(0, 256))
	assert.Equal(t, uint16(512+3*256), of0.ComputeRankIncrease(512, 256))
}

func TestComputeRankIncrease_capsAtInfinite(t *testing.T) {
	t.Parallel()

	got := of0.ComputeRankIncrease(0xffff-10, 256)
	assert.Equal(t, of0.InfiniteRank, got)
}

func TestDAGRank(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(3), of0.DAGRank(768, 256))
	assert.Equal(t, uint16(0), of0.DAGRank(100, 0))
}

func baseCandidate() of0.Candidate {
	return of0.Candidate{
		InstanceID: 1,
		OCP:        0,
		DODAGID:    netip.MustParseAddr("2001:db8::1"),
		Version:    version(1),
		Grounded:   true,
		Prf:        0,
		Rank:       512,
		LastDIO:    time.Unix(1000, 0),
	}
}

func TestCompare_incomparableAcrossInstance(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	b := baseCandidate()
	b.InstanceID = 2

	_, err := of0.Compare(a, b)
	assert.Error(t, err)
}

func TestCompare_groundedBeatsFloating(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	b := baseCandidate()
	b.Grounded = false

	cmp, err := of0.Compare(a, b)
	require.NoError(t, err)
	assert.Negative(t, cmp)
}

func TestCompare_lowerPrfWinsAmongGrounded(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	a.Prf = 1
	b := baseCandidate()
	b.Prf = 2

	cmp, err := of0.Compare(a, b)
	require.NoError(t, err)
	assert.Negative(t, cmp)
}

func TestCompare_newerVersionWins(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	a.Version = version(5)
	b := baseCandidate()
	b.Version = version(3)

	cmp, err := of0.Compare(a, b)
	require.NoError(t, err)
	assert.Negative(t, cmp)
}

func TestCompare_lowerRankWins(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	a.Rank = 256
	b := baseCandidate()
	b.Rank = 512

	cmp, err := of0.Compare(a, b)
	require.NoError(t, err)
	assert.Negative(t, cmp)
}

func TestCompare_hysteresisPrefersIncumbent(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	a.Preferred = true
	b := baseCandidate()

	cmp, err := of0.Compare(a, b)
	require.NoError(t, err)
	assert.Negative(t, cmp)
}

func TestCompare_recentLastDIOWins(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	a.LastDIO = time.Unix(2000, 0)
	b := baseCandidate()
	b.LastDIO = time.Unix(1000, 0)

	cmp, err := of0.Compare(a, b)
	require.NoError(t, err)
	assert.Negative(t, cmp)
}

func TestCompare_identicalCandidatesAreEqual(t *testing.T) {
	t.Parallel()

	a := baseCandidate()
	b := baseCandidate()

	cmp, err := of0.Compare(a, b)
	require.NoError(t, err)
	assert.Zero(t, cmp)
}
