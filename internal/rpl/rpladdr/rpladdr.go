// Package rpladdr implements IPv6 address classification and SLAAC
// Interface Identifier derivation for RPL (spec Section 4.4).
//
// Address exposes its packed and printable forms as two distinctly named
// methods, Bytes and String, rather than conflating them the way the Python
// original's __str__ (packed bytes) and __repr__ (printable form) do
// (design note 9c).
package rpladdr

import (
	"net"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/c-robinson/iplib/iid"
)

// linkLocalPrefix is fe80::/64.
var linkLocalPrefix = netip.MustParsePrefix("fe80::/64")

// AllRPLNodes is the RPL all-nodes multicast address, ff02::1a.
var AllRPLNodes = netip.MustParseAddr("ff02::1a")

// Address wraps a 16-byte IPv6 address.
type Address struct {
	addr netip.Addr
}

// New wraps addr, which must be a valid 16-byte (v6) address.
func New(addr netip.Addr) (a Address, err error) {
	if !addr.Is6() && !addr.Is4In6() {
		return Address{}, errors.Error("rpladdr: address is not IPv6")
	}

	return Address{addr: addr}, nil
}

// Bytes returns the packed 16-byte form of the address.
func (a Address) Bytes() (b [16]byte) { return a.addr.As16() }

// String returns the printable form of the address, implementing
// fmt.Stringer.
func (a Address) String() string { return a.addr.String() }

// Addr returns the underlying netip.Addr.
func (a Address) Addr() netip.Addr { return a.addr }

// IsLinkLocal reports whether addr is in fe80::/64.
func IsLinkLocal(addr netip.Addr) (ok bool) {
	return linkLocalPrefix.Contains(addr)
}

// IsAllRPLNodes reports whether addr is the RPL all-nodes multicast
// address ff02::1a.
func IsAllRPLNodes(addr netip.Addr) (ok bool) {
	return addr == AllRPLNodes
}

// errBadHardwareAddr is returned by LLAddrToIID when hw is neither a 48-bit
// (EUI-48) nor a 64-bit (EUI-64) hardware address.
const errBadHardwareAddr errors.Error = "rpladdr: hardware address must be EUI-48 or EUI-64"

// LLAddrToIID derives a 64-bit Interface Identifier from a hardware
// address, per RFC 4291 Section 2.5.1: an EUI-48 address has 0xff,0xfe
// inserted at bytes 3-4 and the U/L bit flipped; an EUI-64 address only has
// the U/L bit flipped.
//
// Derivation is delegated to github.com/c-robinson/iplib's iid package,
// whose MakeEUI64Addr implements exactly this embedding and bit flip.
func LLAddrToIID(hw net.HardwareAddr) (iidBytes [8]byte, err error) {
	if len(hw) != 6 && len(hw) != 8 {
		return [8]byte{}, errBadHardwareAddr
	}

	// MakeEUI64Addr needs a 16-byte IP to embed the IID into; any /64
	// prefix works as scratch space since only the low 8 bytes are used.
	scratch := net.ParseIP("::")
	full := iid.MakeEUI64Addr(scratch, hw, iid.ScopeInvert)
	if full == nil {
		return [8]byte{}, errBadHardwareAddr
	}

	return [8]byte(full[8:16]), nil
}

// DeriveAddress concatenates a /64 prefix with the Interface Identifier
// derived from a hardware address, per spec Section 4.4's derive_address.
func DeriveAddress(prefix netip.Addr, hw net.HardwareAddr) (addr netip.Addr, err error) {
	iidBytes, err := LLAddrToIID(hw)
	if err != nil {
		return netip.Addr{}, errors.Annotate(err, "deriving address: %w")
	}

	prefixBytes := prefix.As16()
	var full [16]byte
	copy(full[:8], prefixBytes[:8])
	copy(full[8:], iidBytes[:])

	return netip.AddrFrom16(full), nil
}
