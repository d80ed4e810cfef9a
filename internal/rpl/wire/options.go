package wire

import "net/netip"

// RPL option types, see RFC 6550 Section 6.7.
const (
	OptPad1               = 0x00
	OptPadN               = 0x01
	OptDAGMetricContainer = 0x02
	OptRoutingInformation = 0x03
	OptDODAGConfiguration = 0x04
	OptRPLTarget          = 0x05
	OptTransitInformation = 0x06
	OptSolicitedInfo      = 0x07
	OptPrefixInformation  = 0x08
	OptTargetDescriptor   = 0x09
)

// Option is a generic, already-delimited RPL option: its type, and the raw
// option-specific payload (everything after the Option Type and, for all
// but Pad1, the Option Length byte).
type Option struct {
	Type    uint8
	Payload []byte
}

// AppendPad1 appends a single Pad1 byte (RFC 6550 Section 6.7.2), which
// uniquely has no length field.
func AppendPad1(buf []byte) []byte {
	return append(buf, OptPad1)
}

// AppendPadN appends a PadN option of n zero padding bytes (RFC 6550
// Section 6.7.3).
func AppendPadN(buf []byte, n int) []byte {
	out := append(buf, OptPadN, uint8(n))
	for range n {
		out = append(out, 0)
	}

	return out
}

// appendTLV appends a generic Option-Type/Option-Length/payload option.
func appendTLV(buf []byte, typ uint8, payload []byte) []byte {
	out := append(buf, typ, uint8(len(payload)))

	return append(out, payload...)
}

// WalkOptions calls fn for every option in b in order, in the same way
// find_option/get_all_options walk the TLV sequence in the Python original:
// Pad1 is a single byte with no length; every other option type has an
// Option Length byte.  WalkOptions stops and returns an error if an option
// type is unrecognized or a declared length exceeds the remaining bytes.
// fn may return false to stop the walk early without error.
func WalkOptions(b []byte, fn func(Option) (cont bool)) (err error) {
	for len(b) > 0 {
		typ := b[0]
		if typ == OptPad1 {
			if !fn(Option{Type: OptPad1}) {
				return nil
			}

			b = b[1:]

			continue
		}

		if !isKnownOption(typ) {
			return ErrUnknownOption
		}

		if err = need(b, 2); err != nil {
			return err
		}

		length := int(b[1])
		if err = need(b[2:], length); err != nil {
			return ErrLengthUnderflow
		}

		if !fn(Option{Type: typ, Payload: b[2 : 2+length]}) {
			return nil
		}

		b = b[2+length:]
	}

	return nil
}

// GetAllOptions returns every option in b, in order.
func GetAllOptions(b []byte) (opts []Option, err error) {
	err = WalkOptions(b, func(o Option) bool {
		opts = append(opts, o)

		return true
	})

	return opts, err
}

// FindOption returns the nth (zero-indexed, by position among options of
// that type) occurrence of an option of the given type in b.
func FindOption(b []byte, typ uint8, position int) (o Option, ok bool, err error) {
	n := 0
	err = WalkOptions(b, func(cand Option) bool {
		if cand.Type != typ {
			return true
		}

		if n == position {
			o, ok = cand, true

			return false
		}

		n++

		return true
	})

	return o, ok, err
}

func isKnownOption(typ uint8) (known bool) {
	switch typ {
	case OptPad1, OptPadN, OptDAGMetricContainer, OptRoutingInformation,
		OptDODAGConfiguration, OptRPLTarget, OptTransitInformation,
		OptSolicitedInfo, OptPrefixInformation, OptTargetDescriptor:
		return true
	default:
		return false
	}
}

// DAGMetricContainer is an opaque DAG Metric Container option (RFC 6550
// Section 6.7.4).  Metric Container semantics are a non-goal (spec Section
// 1); the container's payload is carried opaquely.
type DAGMetricContainer struct {
	Data []byte
}

// Append appends the wire encoding of the option to buf.
func (o DAGMetricContainer) Append(buf []byte) []byte {
	return appendTLV(buf, OptDAGMetricContainer, o.Data)
}

// ParseDAGMetricContainer parses an option payload (without the Type/Length
// header) into a DAGMetricContainer.
func ParseDAGMetricContainer(payload []byte) (o DAGMetricContainer) {
	return DAGMetricContainer{Data: payload}
}

// RoutingInformation is the Routing Information option (RFC 6550 Section
// 6.7.1).
type RoutingInformation struct {
	PrefixLength uint8

	// Prf is the 2-bit route preference field.
	Prf uint8

	RouteLifetime uint32
	Prefix        []byte // up to 16 bytes, PrefixLength-significant bits
}

// packResvPrfResv packs the Reserved|Prf|Reserved2 compound byte (RFC 6550
// Figure 22).  The Python original masks this byte inconsistently with its
// own claimed field widths; this codec follows the RFC figure instead (see
// DESIGN.md): bits 7-5 reserved, bits 4-3 Prf, bits 2-0 reserved.
func packResvPrfResv(prf uint8) (b byte) {
	return (prf & 0x03) << 3
}

func unpackResvPrfResv(b byte) (prf uint8) {
	return (b >> 3) & 0x03
}

// Append appends the wire encoding of the option to buf.
func (o RoutingInformation) Append(buf []byte) []byte {
	payload := make([]byte, 0, 2+4+len(o.Prefix))
	payload = append(payload, o.PrefixLength, packResvPrfResv(o.Prf))

	var lifetime [4]byte
	putUint32(lifetime[:], o.RouteLifetime)
	payload = append(payload, lifetime[:]...)
	payload = append(payload, o.Prefix...)

	return appendTLV(buf, OptRoutingInformation, payload)
}

// ParseRoutingInformation parses an option payload (without the
// Type/Length header) into a RoutingInformation.
func ParseRoutingInformation(payload []byte) (o RoutingInformation, err error) {
	if err = need(payload, 6); err != nil {
		return RoutingInformation{}, err
	}

	return RoutingInformation{
		PrefixLength:  payload[0],
		Prf:           unpackResvPrfResv(payload[1]),
		RouteLifetime: getUint32(payload[2:6]),
		Prefix:        payload[6:],
	}, nil
}

// DODAGConfiguration is the DODAG Configuration option (RFC 6550 Section
// 6.7.6), a fixed 14-byte payload.
type DODAGConfiguration struct {
	// Authenticated is the option's "A" flag.
	Authenticated bool

	// PCS is the 3-bit Path Control Size field.
	PCS uint8

	DIOIntDoublings    uint8
	DIOIntMin          uint8
	DIORedundancyConst uint8
	MaxRankIncrease    uint16
	MinHopRankIncrease uint16
	OCP                uint16
	DftLft             uint8
	LftUnit            uint16
}

// packFlagsAPCS packs the Flags|A|PCS compound byte (RFC 6550 Figure 16).
// The Python original masks PCS as 0x05, inconsistent with its own claimed
// 3-bit field width; this codec uses the RFC-consistent layout instead (see
// DESIGN.md): bits 7-4 reserved flags, bit 3 is A, bits 2-0 are PCS.
func packFlagsAPCS(authenticated bool, pcs uint8) (b byte) {
	if authenticated {
		b |= 1 << 3
	}

	b |= pcs & 0x07

	return b
}

func unpackFlagsAPCS(b byte) (authenticated bool, pcs uint8) {
	return b&(1<<3) != 0, b & 0x07
}

const dodagConfigurationLength = 14

// Append appends the wire encoding of the option to buf.
func (o DODAGConfiguration) Append(buf []byte) []byte {
	payload := make([]byte, 0, dodagConfigurationLength)
	payload = append(payload,
		packFlagsAPCS(o.Authenticated, o.PCS),
		o.DIOIntDoublings,
		o.DIOIntMin,
		o.DIORedundancyConst,
	)

	var u16 [2]byte
	putUint16(u16[:], o.MaxRankIncrease)
	payload = append(payload, u16[:]...)
	putUint16(u16[:], o.MinHopRankIncrease)
	payload = append(payload, u16[:]...)
	putUint16(u16[:], o.OCP)
	payload = append(payload, u16[:]...)

	payload = append(payload, 0, o.DftLft) // Reserved, Default Lifetime.

	putUint16(u16[:], o.LftUnit)
	payload = append(payload, u16[:]...)

	return appendTLV(buf, OptDODAGConfiguration, payload)
}

// ParseDODAGConfiguration parses an option payload (without the
// Type/Length header) into a DODAGConfiguration.
func ParseDODAGConfiguration(payload []byte) (o DODAGConfiguration, err error) {
	if err = need(payload, dodagConfigurationLength); err != nil {
		return DODAGConfiguration{}, err
	}

	authenticated, pcs := unpackFlagsAPCS(payload[0])

	return DODAGConfiguration{
		Authenticated:      authenticated,
		PCS:                pcs,
		DIOIntDoublings:    payload[1],
		DIOIntMin:          payload[2],
		DIORedundancyConst: payload[3],
		MaxRankIncrease:    getUint16(payload[4:6]),
		MinHopRankIncrease: getUint16(payload[6:8]),
		OCP:                getUint16(payload[8:10]),
		DftLft:             payload[11],
		LftUnit:            getUint16(payload[12:14]),
	}, nil
}

// RPLTarget is the RPL Target option (RFC 6550 Section 6.7.7).
type RPLTarget struct {
	PrefixLength uint8
	Prefix       []byte // up to 16 bytes, PrefixLength-significant bits
}

// Append appends the wire encoding of the option to buf.
func (o RPLTarget) Append(buf []byte) []byte {
	payload := append([]byte{0, o.PrefixLength}, o.Prefix...)

	return appendTLV(buf, OptRPLTarget, payload)
}

// ParseRPLTarget parses an option payload (without the Type/Length header)
// into an RPLTarget.  The leading Flags byte (RFC 6550 Figure 23) is
// reserved and ignored.
func ParseRPLTarget(payload []byte) (o RPLTarget, err error) {
	if err = need(payload, 2); err != nil {
		return RPLTarget{}, err
	}

	return RPLTarget{PrefixLength: payload[1], Prefix: payload[2:]}, nil
}

// TransitInformation is the Transit Information option (RFC 6550 Section
// 6.7.8).  The Parent Address field is omitted: it is used only in
// Non-Storing Mode, which is out of scope (spec Section 1; this daemon is
// MOP=2 Storing Mode only).
type TransitInformation struct {
	// External is the option's "E" flag.
	External bool

	PathControl  uint8
	PathSequence uint8
	PathLifetime uint8
}

const transitInformationLength = 4

// Append appends the wire encoding of the option to buf.
func (o TransitInformation) Append(buf []byte) []byte {
	var eflags byte
	if o.External {
		eflags = 1 << 7
	}

	payload := []byte{eflags, o.PathControl, o.PathSequence, o.PathLifetime}

	return appendTLV(buf, OptTransitInformation, payload)
}

// ParseTransitInformation parses an option payload (without the
// Type/Length header) into a TransitInformation.  A payload longer than the
// fixed Storing-Mode length carries a Parent Address, which is accepted
// (this node tolerates but ignores it) and discarded.
func ParseTransitInformation(payload []byte) (o TransitInformation, err error) {
	if err = need(payload, transitInformationLength); err != nil {
		return TransitInformation{}, err
	}

	return TransitInformation{
		External:     payload[0]&(1<<7) != 0,
		PathControl:  payload[1],
		PathSequence: payload[2],
		PathLifetime: payload[3],
	}, nil
}

// SolicitedInformation is the Solicited Information option (RFC 6550
// Section 6.7.9), a fixed 19-byte payload.
type SolicitedInformation struct {
	InstanceID uint8

	// V, I, D select which fields below are filters that must match.
	V, I, D bool

	DODAGID netip.Addr
	Version uint8
}

const solicitedInformationLength = 19

func packVID(v, i, d bool) (b byte) {
	if v {
		b |= 1 << 7
	}

	if i {
		b |= 1 << 6
	}

	if d {
		b |= 1 << 5
	}

	return b
}

func unpackVID(b byte) (v, i, d bool) {
	return b&(1<<7) != 0, b&(1<<6) != 0, b&(1<<5) != 0
}

// Append appends the wire encoding of the option to buf.
func (o SolicitedInformation) Append(buf []byte) []byte {
	payload := make([]byte, 0, solicitedInformationLength)
	payload = append(payload, o.InstanceID, packVID(o.V, o.I, o.D))

	id := o.DODAGID.As16()
	payload = append(payload, id[:]...)
	payload = append(payload, o.Version)

	return appendTLV(buf, OptSolicitedInfo, payload)
}

// ParseSolicitedInformation parses an option payload (without the
// Type/Length header) into a SolicitedInformation.
func ParseSolicitedInformation(payload []byte) (o SolicitedInformation, err error) {
	if err = need(payload, solicitedInformationLength); err != nil {
		return SolicitedInformation{}, err
	}

	v, i, d := unpackVID(payload[1])

	return SolicitedInformation{
		InstanceID: payload[0],
		V:          v,
		I:          i,
		D:          d,
		DODAGID:    netip.AddrFrom16([16]byte(payload[2:18])),
		Version:    payload[18],
	}, nil
}

// PrefixInformation is the Prefix Information option (RFC 6550 Section
// 6.7.10, reusing the RFC 4861 option layout), a fixed 30-byte payload.
type PrefixInformation struct {
	PrefixLength uint8

	// L, A, R are the On-Link, Autonomous-Address-Configuration, and
	// Router-Address flags.
	L, A, R bool

	ValidLifetime     uint32
	PreferredLifetime uint32
	Prefix            netip.Addr
}

const prefixInformationLength = 30

func packLAR(l, a, r bool) (b byte) {
	if l {
		b |= 1 << 7
	}

	if a {
		b |= 1 << 6
	}

	if r {
		b |= 1 << 5
	}

	return b
}

func unpackLAR(b byte) (l, a, r bool) {
	return b&(1<<7) != 0, b&(1<<6) != 0, b&(1<<5) != 0
}

// Append appends the wire encoding of the option to buf.
func (o PrefixInformation) Append(buf []byte) []byte {
	payload := make([]byte, 0, prefixInformationLength)
	payload = append(payload, o.PrefixLength, packLAR(o.L, o.A, o.R))

	var u32 [4]byte
	putUint32(u32[:], o.ValidLifetime)
	payload = append(payload, u32[:]...)
	putUint32(u32[:], o.PreferredLifetime)
	payload = append(payload, u32[:]...)
	payload = append(payload, 0, 0, 0, 0) // Reserved2.

	prefix := o.Prefix.As16()
	payload = append(payload, prefix[:]...)

	return appendTLV(buf, OptPrefixInformation, payload)
}

// ParsePrefixInformation parses an option payload (without the Type/Length
// header) into a PrefixInformation.
func ParsePrefixInformation(payload []byte) (o PrefixInformation, err error) {
	if err = need(payload, prefixInformationLength); err != nil {
		return PrefixInformation{}, err
	}

	l, a, r := unpackLAR(payload[1])

	return PrefixInformation{
		PrefixLength:      payload[0],
		L:                 l,
		A:                 a,
		R:                 r,
		ValidLifetime:     getUint32(payload[2:6]),
		PreferredLifetime: getUint32(payload[6:10]),
		Prefix:            netip.AddrFrom16([16]byte(payload[14:30])),
	}, nil
}

// TargetDescriptor is the Target Descriptor option (RFC 6550 Section
// 6.7.11), a fixed 4-byte payload.
type TargetDescriptor struct {
	Descriptor uint32
}

// Append appends the wire encoding of the option to buf.
func (o TargetDescriptor) Append(buf []byte) []byte {
	var payload [4]byte
	putUint32(payload[:], o.Descriptor)

	return appendTLV(buf, OptTargetDescriptor, payload[:])
}

// ParseTargetDescriptor parses an option payload (without the Type/Length
// header) into a TargetDescriptor.
func ParseTargetDescriptor(payload []byte) (o TargetDescriptor, err error) {
	if err = need(payload, 4); err != nil {
		return TargetDescriptor{}, err
	}

	return TargetDescriptor{Descriptor: getUint32(payload[:4])}, nil
}
