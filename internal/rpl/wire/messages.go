package wire

import "net/netip"

// DIS is a DODAG Information Solicitation message (RFC 6550 Section 6.2).
type DIS struct {
	// Options holds the optional trailing TLV sequence, typically a single
	// Solicited Information option.
	Options []byte
}

// Encode appends the wire encoding of the DIS to buf and returns the result.
func (m DIS) Encode(buf []byte) []byte {
	out := appendHeader(buf, CodeDIS)
	out = append(out, 0, 0) // Flags, Reserved; both MUST be zero on send.
	out = append(out, m.Options...)

	return out
}

// ParseDIS parses the body of a DIS message (after the common ICMPv6
// header).
func ParseDIS(b []byte) (m DIS, err error) {
	if err = need(b, 2); err != nil {
		return DIS{}, err
	}

	return DIS{Options: b[2:]}, nil
}

// DIO is a DODAG Information Object message (RFC 6550 Section 6.3).
type DIO struct {
	InstanceID uint8
	Version    uint8
	Rank       uint16

	// Grounded is the DODAG's "G" flag.
	Grounded bool

	// MOP is the 3-bit Mode of Operation field.
	MOP uint8

	// Prf is the 3-bit DODAGPreference field.
	Prf uint8

	DTSN    uint8
	DODAGID netip.Addr

	Options []byte
}

// packGMOPPrf packs the G|0|MOP|Prf compound byte (RFC 6550 Figure 13): bit
// 7 is G, bit 6 is reserved, bits 5-3 are MOP, bits 2-0 are Prf.
func packGMOPPrf(grounded bool, mop, prf uint8) (b byte) {
	if grounded {
		b |= 1 << 7
	}

	b |= (mop & 0x07) << 3
	b |= prf & 0x07

	return b
}

func unpackGMOPPrf(b byte) (grounded bool, mop, prf uint8) {
	grounded = b&(1<<7) != 0
	mop = (b >> 3) & 0x07
	prf = b & 0x07

	return grounded, mop, prf
}

// Encode appends the wire encoding of the DIO to buf and returns the result.
func (m DIO) Encode(buf []byte) []byte {
	out := appendHeader(buf, CodeDIO)
	out = append(out, m.InstanceID, m.Version)

	var rank [2]byte
	putUint16(rank[:], m.Rank)
	out = append(out, rank[:]...)

	out = append(out, packGMOPPrf(m.Grounded, m.MOP, m.Prf), m.DTSN, 0, 0)

	id := m.DODAGID.As16()
	out = append(out, id[:]...)
	out = append(out, m.Options...)

	return out
}

// ParseDIO parses the body of a DIO message (after the common ICMPv6
// header).
func ParseDIO(b []byte) (m DIO, err error) {
	if err = need(b, 2+2+1+1+1+1+16); err != nil {
		return DIO{}, err
	}

	instanceID, version := b[0], b[1]
	rank := getUint16(b[2:4])
	grounded, mop, prf := unpackGMOPPrf(b[4])
	dtsn := b[5]
	// b[6] is Flags (reserved, ignored on parse), b[7] is Reserved.
	dodagID := netip.AddrFrom16([16]byte(b[8:24]))

	return DIO{
		InstanceID: instanceID,
		Version:    version,
		Rank:       rank,
		Grounded:   grounded,
		MOP:        mop,
		Prf:        prf,
		DTSN:       dtsn,
		DODAGID:    dodagID,
		Options:    b[24:],
	}, nil
}

// DAO is a Destination Advertisement Object message (RFC 6550 Section 6.4).
type DAO struct {
	InstanceID uint8

	// K requests a DAO-ACK.
	K bool

	// D indicates DODAGID is present.
	D bool

	DAOSequence uint8

	// DODAGID is meaningful only if D is true.
	DODAGID netip.Addr

	Options []byte
}

func packKD(k, d bool) (b byte) {
	if k {
		b |= 1 << 7
	}

	if d {
		b |= 1 << 6
	}

	return b
}

func unpackKD(b byte) (k, d bool) {
	return b&(1<<7) != 0, b&(1<<6) != 0
}

// Encode appends the wire encoding of the DAO to buf and returns the
// result.  The DODAGID field is present iff D is set.
func (m DAO) Encode(buf []byte) []byte {
	out := appendHeader(buf, CodeDAO)
	out = append(out, m.InstanceID, packKD(m.K, m.D), 0, m.DAOSequence)

	if m.D {
		id := m.DODAGID.As16()
		out = append(out, id[:]...)
	}

	out = append(out, m.Options...)

	return out
}

// ParseDAO parses the body of a DAO message (after the common ICMPv6
// header).
func ParseDAO(b []byte) (m DAO, err error) {
	if err = need(b, 4); err != nil {
		return DAO{}, err
	}

	instanceID := b[0]
	k, d := unpackKD(b[1])
	// b[2] is Reserved.
	seq := b[3]
	rest := b[4:]

	var dodagID netip.Addr
	if d {
		if err = need(rest, 16); err != nil {
			return DAO{}, err
		}

		dodagID = netip.AddrFrom16([16]byte(rest[:16]))
		rest = rest[16:]
	}

	return DAO{
		InstanceID:  instanceID,
		K:           k,
		D:           d,
		DAOSequence: seq,
		DODAGID:     dodagID,
		Options:     rest,
	}, nil
}

// DAOACK is a Destination Advertisement Object Acknowledgment message (RFC
// 6550 Section 6.5).
type DAOACK struct {
	InstanceID uint8

	// D indicates DODAGID is present.
	D bool

	DAOSequence uint8
	Status      uint8

	// DODAGID is meaningful only if D is true.
	DODAGID netip.Addr
}

// Encode appends the wire encoding of the DAO-ACK to buf and returns the
// result.
func (m DAOACK) Encode(buf []byte) []byte {
	out := appendHeader(buf, CodeDAOACK)

	var dflag byte
	if m.D {
		dflag = 1 << 7
	}

	out = append(out, m.InstanceID, dflag, m.DAOSequence, m.Status)

	if m.D {
		id := m.DODAGID.As16()
		out = append(out, id[:]...)
	}

	return out
}

// ParseDAOACK parses the body of a DAO-ACK message (after the common ICMPv6
// header).  DAO-ACK carries no trailing options; any leftover bytes are
// returned so the caller can reject a malformed message that carries them
// (see spec Section 4.10).
func ParseDAOACK(b []byte) (m DAOACK, rest []byte, err error) {
	if err = need(b, 4); err != nil {
		return DAOACK{}, nil, err
	}

	instanceID := b[0]
	d := b[1]&(1<<7) != 0
	seq := b[2]
	status := b[3]
	rest = b[4:]

	var dodagID netip.Addr
	if d {
		if err = need(rest, 16); err != nil {
			return DAOACK{}, nil, err
		}

		dodagID = netip.AddrFrom16([16]byte(rest[:16]))
		rest = rest[16:]
	}

	return DAOACK{
		InstanceID:  instanceID,
		D:           d,
		DAOSequence: seq,
		Status:      status,
		DODAGID:     dodagID,
	}, rest, nil
}

// CC is a Consistency Check message (RFC 6550 Section 6.6).  Only the
// codec is in scope; CC processing semantics are explicitly out of scope
// (spec Section 1).
type CC struct {
	InstanceID uint8

	// R indicates this is a response to a received CC message.
	R bool

	CCNonce            uint16
	DODAGID            netip.Addr
	DestinationCounter uint32
}

// Encode appends the wire encoding of the CC message to buf and returns the
// result.
func (m CC) Encode(buf []byte) []byte {
	out := appendHeader(buf, CodeCC)

	var rflag byte
	if m.R {
		rflag = 1 << 7
	}

	out = append(out, m.InstanceID, rflag)

	var nonce [2]byte
	putUint16(nonce[:], m.CCNonce)
	out = append(out, nonce[:]...)

	id := m.DODAGID.As16()
	out = append(out, id[:]...)

	var counter [4]byte
	putUint32(counter[:], m.DestinationCounter)
	out = append(out, counter[:]...)

	return out
}

// ParseCC parses the body of a CC message (after the common ICMPv6 header).
func ParseCC(b []byte) (m CC, err error) {
	if err = need(b, 2+2+16+4); err != nil {
		return CC{}, err
	}

	instanceID := b[0]
	r := b[1]&(1<<7) != 0
	nonce := getUint16(b[2:4])
	dodagID := netip.AddrFrom16([16]byte(b[4:20]))
	counter := getUint32(b[20:24])

	return CC{
		InstanceID:         instanceID,
		R:                  r,
		CCNonce:            nonce,
		DODAGID:            dodagID,
		DestinationCounter: counter,
	}, nil
}
