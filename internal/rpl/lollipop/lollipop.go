// Package lollipop implements the lollipop sequence counter described in
// RFC 6550 Section 7.2: an 8-bit value split into a linear region and a
// circular region, used for DODAG version numbers, DTSN, DAO sequence, and
// Path sequence.
package lollipop

import (
	"strconv"

	"github.com/AdguardTeam/golibs/errors"
)

// Sequence-space constants, see RFC 6550 Section 7.2.
const (
	// MinVal is the smallest value a [Counter] may hold.
	MinVal = 0

	// MaxVal is one past the largest value a [Counter] may hold; the space
	// is [MinVal, MaxVal).
	MaxVal = 256

	// LollipopInt is the boundary between the linear region [0, LollipopInt)
	// and the circular region [LollipopInt, MaxVal).
	LollipopInt = 128

	// SequenceWindow bounds the RFC 1982 serial-number comparison: values
	// farther apart than this are declared incomparable.
	SequenceWindow = 16

	// Default is the counter's initial value absent any other
	// configuration: it starts in the circular "lollipop" region,
	// SequenceWindow increments short of wrapping into the linear region.
	Default = MaxVal - SequenceWindow
)

// errOutOfRange is returned by [New] when the supplied value is outside
// [MinVal, MaxVal).
const errOutOfRange errors.Error = "value is not in lollipop counter range"

// Counter is an 8-bit lollipop sequence counter.  The zero Counter is not
// valid; use [New] or [NewDefault].
type Counter struct {
	val uint8
}

// New returns a new Counter with the given initial value.  It returns
// errOutOfRange if val is outside [MinVal, MaxVal).
func New(val int) (c Counter, err error) {
	if val < MinVal || val >= MaxVal {
		return Counter{}, errOutOfRange
	}

	return Counter{val: uint8(val)}, nil
}

// NewDefault returns a new Counter set to [Default].
func NewDefault() (c Counter) {
	c, _ = New(Default)

	return c
}

// Val returns the counter's current value.
func (c Counter) Val() int { return int(c.val) }

// Add returns a new Counter advanced by delta.  The result wraps at MaxVal
// when c is already in the circular region, and at LollipopInt otherwise,
// per RFC 6550 Section 7.2.
func (c Counter) Add(delta int) (next Counter) {
	mod := LollipopInt
	if int(c.val) >= LollipopInt {
		mod = MaxVal
	}

	v := (int(c.val) + delta) % mod
	if v < 0 {
		v += mod
	}

	next, _ = New(v)

	return next
}

// Inc is a convenience wrapper around Add(1).
func (c Counter) Inc() (next Counter) { return c.Add(1) }

// Compare reports the ordering of c relative to other as a lollipop
// sequence comparison: a negative value if c is older than other, zero if
// they are equal, and a positive value if c is newer.
//
// When c and other fall in the same region (both linear or both circular),
// a pair farther apart than [SequenceWindow] is incomparable and reports
// equal, to minimize state churn on the caller, matching the Python
// original's documented behavior. When they straddle the linear/circular
// boundary, the comparison is always decisive, even beyond SequenceWindow.
func (c Counter) Compare(other Counter) (cmp int) {
	a, b := int(c.val), int(other.val)

	aCircular := a >= LollipopInt
	bCircular := b >= LollipopInt

	if aCircular != bCircular {
		// Exactly one operand is in the circular (warm-up) region. Unlike
		// the same-region case, a gap beyond SequenceWindow is still
		// decisive here, not incomparable: mirror the Python original's
		// un-reduced MaxVal+b-a formula, which always yields a definite
		// sign.
		gap := MaxVal + b - a
		if gap <= SequenceWindow {
			return -1
		}

		return 1
	}

	// Same region: RFC 1982 serial-number comparison with SequenceWindow.
	diff := a - b
	if diff < 0 {
		diff = -diff
	}

	if diff > SequenceWindow {
		return 0
	}

	switch {
	case a == b:
		return 0
	case a < b && b-a < MaxVal/2:
		return -1
	case a > b && a-b > MaxVal/2:
		return -1
	default:
		return 1
	}
}

// Less reports whether c is strictly older than other.
func (c Counter) Less(other Counter) bool { return c.Compare(other) < 0 }

// Equal reports whether c and other compare equal (including the
// incomparable case, which is treated as equal).
func (c Counter) Equal(other Counter) bool { return c.Compare(other) == 0 }

// String implements the fmt.Stringer interface.
func (c Counter) String() string {
	return strconv.Itoa(int(c.val))
}
