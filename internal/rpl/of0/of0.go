// Package of0 implements Objective Function Zero (RFC 6552): the rank
// increase computation and the parent comparator used by the neighbor
// cache to pick a preferred parent.
package of0

import (
	"net/netip"
	"time"

	"rpld/internal/rpl/lollipop"
	"github.com/AdguardTeam/golibs/errors"
)

// InfiniteRank is the sentinel rank meaning "no usable path to the root".
const InfiniteRank uint16 = 0xffff

// rankFactor and stretch are fixed at 3 and 0 respectively: this
// implementation does not support the optional Rank Stretch or Rank Factor
// DODAG Configuration extensions, matching the Python original.
const (
	rankFactor = 3
	stretch    = 0
)

// ComputeRankIncrease returns the new rank for a node whose preferred
// parent advertises parentRank, given the DODAG's MinHopRankIncrease. The
// result is capped at [InfiniteRank].
func ComputeRankIncrease(parentRank, minHopRankIncrease uint16) (rank uint16) {
	increase := uint32(rankFactor*1+stretch) * uint32(minHopRankIncrease)
	total := uint32(parentRank) + increase

	if total >= uint32(InfiniteRank) {
		return InfiniteRank
	}

	return uint16(total)
}

// DAGRank returns floor(rank / minHopRankIncrease).
func DAGRank(rank, minHopRankIncrease uint16) (dagRank uint16) {
	if minHopRankIncrease == 0 {
		return 0
	}

	return rank / minHopRankIncrease
}

// errIncomparable is returned by Compare when the two candidates belong to
// different RPL instances or advertise different Objective Code Points;
// RFC 6552 does not define an ordering across them.
const errIncomparable errors.Error = "of0: candidates are not comparable (different instance or OCP)"

// Candidate is the subset of neighbor-cache state the comparator needs. It
// is deliberately not the full neighbor type so this package stays free of
// a dependency on the neighbor cache.
type Candidate struct {
	InstanceID uint8
	OCP        uint16

	// DODAGID and Version identify the DODAG this candidate belongs to.
	DODAGID netip.Addr
	Version lollipop.Counter

	Grounded bool
	Prf      uint8

	// Rank is the node's own rank if it adopted this candidate as parent.
	Rank uint16

	Preferred bool
	LastDIO   time.Time
}

// Compare orders a against b as a strict weak order for preferred-parent
// selection, per RFC 6552 and spec Section 4.9. A negative result means a
// is preferred over b; positive means b is preferred; zero means no
// preference (by this tie-break chain).
//
// Ties are broken, in order: both grounded, lower Prf wins; grounded beats
// floating; same DODAGID with different Version, newer version wins; else
// lower resulting rank wins; else the currently-preferred candidate wins
// (hysteresis); else the more recently heard-from (LastDIO) candidate wins.
func Compare(a, b Candidate) (cmp int, err error) {
	if a.InstanceID != b.InstanceID || a.OCP != b.OCP {
		return 0, errIncomparable
	}

	if a.Grounded && b.Grounded {
		if a.Prf != b.Prf {
			return int(a.Prf) - int(b.Prf), nil
		}
	} else if a.Grounded != b.Grounded {
		if a.Grounded {
			return -1, nil
		}

		return 1, nil
	}

	if a.DODAGID == b.DODAGID && a.Version != b.Version {
		// Newer version wins, per lollipop sequence-counter ordering
		// (RFC 6550 Section 7.2).
		if isNewer(a.Version, b.Version) {
			return -1, nil
		}

		return 1, nil
	}

	if a.Rank != b.Rank {
		if a.Rank < b.Rank {
			return -1, nil
		}

		return 1, nil
	}

	if a.Preferred != b.Preferred {
		if a.Preferred {
			return -1, nil
		}

		return 1, nil
	}

	if !a.LastDIO.Equal(b.LastDIO) {
		if a.LastDIO.After(b.LastDIO) {
			return -1, nil
		}

		return 1, nil
	}

	return 0, nil
}

// isNewer reports whether version a is newer than version b under lollipop
// ordering.
func isNewer(a, b lollipop.Counter) bool {
	return a.Compare(b) > 0
}
