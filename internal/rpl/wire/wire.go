// Package wire implements the ICMPv6 wire codec for RPL (RFC 6550 Section
// 6): the DIS, DIO, DAO, DAO-ACK, and CC messages, and their TLV options.
//
// Every message and option type is a plain struct with an Encode (message)
// or Append (option) method and a matching Parse function; there is no
// generic field bag and no reflection-based
// dispatch.  Compound byte fields (flag bits packed alongside subfields) are
// packed and unpacked with explicit shifts at the exact bit positions shown
// in the RFC 6550 figures.
package wire

import (
	"encoding/binary"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// ICMPv6 type and RPL codes, see RFC 6550 Section 6.
const (
	// ICMPv6Type is the ICMPv6 message type carrying all RPL control
	// messages.
	ICMPv6Type = 155

	CodeDIS    = 0x00
	CodeDIO    = 0x01
	CodeDAO    = 0x02
	CodeDAOACK = 0x03
	CodeCC     = 0x8a
)

// Errors returned by Parse methods throughout this package.
const (
	ErrTruncated       errors.Error = "rpl wire: truncated input"
	ErrLengthUnderflow errors.Error = "rpl wire: declared length exceeds remaining input"
	ErrUnknownOption   errors.Error = "rpl wire: unknown option type"

	// ErrFieldRange is declared but not returned by any function in this
	// package; encoders do not range-check their fields.
	ErrFieldRange errors.Error = "rpl wire: field value out of range"
)

// AllRPLNodes is the RPL multicast address ff02::1a used for broadcast DIS
// and DIO messages.
var AllRPLNodes = netip.MustParseAddr("ff02::1a")

// errNotRPL is returned by ParseHeader when the ICMPv6 type byte does not
// match [ICMPv6Type].
const errNotRPL errors.Error = "rpl wire: not an ICMPv6 RPL message"

// appendHeader appends the 4-byte ICMPv6 header (type, code, checksum=0) to
// buf and returns the result.  The checksum is always encoded as zero; it
// is the link layer's responsibility to compute it (out of scope, spec
// Section 1).
func appendHeader(buf []byte, code uint8) []byte {
	return append(buf, ICMPv6Type, code, 0, 0)
}

// ParseHeader reads the common ICMPv6 header from b.  It returns the code,
// and the remaining bytes after the 4-byte header.
func ParseHeader(b []byte) (code uint8, rest []byte, err error) {
	if len(b) < 4 {
		return 0, nil, ErrTruncated
	}

	if b[0] != ICMPv6Type {
		return 0, nil, errNotRPL
	}

	return b[1], b[4:], nil
}

func putUint16(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf, v) }

func putUint32(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }

func getUint16(buf []byte) (v uint16) { return binary.BigEndian.Uint16(buf) }

func getUint32(buf []byte) (v uint32) { return binary.BigEndian.Uint32(buf) }

// need reports ErrTruncated if b has fewer than n bytes remaining.
func need(b []byte, n int) (err error) {
	if len(b) < n {
		return ErrTruncated
	}

	return nil
}
