package session

import (
	"strconv"
)

// YesNo is the RFC 3720 boolean-valued text encoding ("Yes"/"No") used by
// several operational keys.
type YesNo bool

func (y YesNo) String() string {
	if y {
		return "Yes"
	}
	return "No"
}

func parseYesNo(s string) (YesNo, bool) {
	switch s {
	case "Yes":
		return true, true
	case "No":
		return false, true
	default:
		return false, false
	}
}

// Digest is the negotiated value for HeaderDigest/DataDigest. Only None is
// actually supported; CRC32C is accepted as an offer but this target always
// negotiates it down to None (digests beyond a no-op negotiation are an
// explicit Non-goal).
type Digest int

const (
	DigestNone Digest = iota
	DigestCRC32C
)

func (d Digest) String() string {
	if d == DigestCRC32C {
		return "CRC32C"
	}
	return "None"
}

func parseDigest(s string) (Digest, bool) {
	switch s {
	case "None":
		return DigestNone, true
	case "CRC32C":
		return DigestCRC32C, true
	default:
		return 0, false
	}
}

// ParameterBundle holds the negotiated operational login/text keys for a
// session, per spec §3. Every field has a spec-defined domain; Negotiate
// applies the RFC 3720 §12 "result function" for each recognized key as
// offers arrive, rejecting any offer outside its domain with a
// *NegotiateError so the caller never accepts a half-negotiated bundle.
type ParameterBundle struct {
	HeaderDigest Digest
	DataDigest   Digest

	MaxRecvDataSegmentLength uint32
	MaxBurstLength           uint32
	FirstBurstLength         uint32

	DefaultTime2Wait   uint32
	DefaultTime2Retain uint32

	MaxOutstandingR2T uint32

	InitialR2T          YesNo
	ImmediateData       YesNo
	DataPDUInOrder      YesNo
	DataSequenceInOrder YesNo

	MaxConnections     uint32
	ErrorRecoveryLevel uint32
}

// DefaultParameterBundle returns the target's default operational values,
// offered as the starting point of negotiation and used verbatim for any
// key the initiator never mentions. Per the design note in spec §9, this
// target prefers InitialR2T=Yes / ImmediateData=No: the cleanest write path
// is exactly one R2T→Data-Out round trip per burst, with unsolicited data
// support left off by default.
func DefaultParameterBundle() ParameterBundle {
	return ParameterBundle{
		HeaderDigest:             DigestNone,
		DataDigest:               DigestNone,
		MaxRecvDataSegmentLength: pdu_DefaultMaxDataSegmentLength,
		MaxBurstLength:           262144,
		FirstBurstLength:         65536,
		DefaultTime2Wait:         2,
		DefaultTime2Retain:       20,
		MaxOutstandingR2T:        1,
		InitialR2T:               true,
		ImmediateData:            false,
		DataPDUInOrder:           true,
		DataSequenceInOrder:      true,
		MaxConnections:           1,
		ErrorRecoveryLevel:       0,
	}
}

// pdu_DefaultMaxDataSegmentLength mirrors pdu.DefaultMaxDataSegmentLength
// without importing the pdu package purely for a constant (avoided to keep
// this file's domain-validation logic free of a codec dependency); kept in
// sync deliberately — both are 8192 per RFC 3720 §12.12's default.
const pdu_DefaultMaxDataSegmentLength = 8192

// NegotiateError reports that an offered key's value was outside its
// RFC 3720 domain or otherwise unacceptable, carrying the key name so the
// login handler can decide which reject status to emit.
type NegotiateError struct {
	Key    string
	Reason string
}

func (e *NegotiateError) Error() string {
	return "session: negotiation rejected for " + e.Key + ": " + e.Reason
}

func negErr(key, reason string) error {
	return &NegotiateError{Key: key, Reason: reason}
}

// Negotiate applies the result function for a single offered key=value pair
// and returns the value this target will reply with, mutating b in place.
// Unrecognized keys yield recognized=false, an empty reply and no error,
// so the caller can decide whether to echo them (e.g. X-extension keys)
// or ignore them.
func (b *ParameterBundle) Negotiate(key, value string) (reply string, recognized bool, err error) {
	switch key {
	case "HeaderDigest":
		v, ok := parseDigest(value)
		if !ok {
			return "", true, negErr(key, "unrecognized digest value")
		}
		// Result function: target always prefers None (digests are a
		// no-op negotiation per the Non-goal).
		b.HeaderDigest = DigestNone
		_ = v
		return b.HeaderDigest.String(), true, nil

	case "DataDigest":
		v, ok := parseDigest(value)
		if !ok {
			return "", true, negErr(key, "unrecognized digest value")
		}
		b.DataDigest = DigestNone
		_ = v
		return b.DataDigest.String(), true, nil

	case "MaxRecvDataSegmentLength":
		v, ok := parseUint32(value)
		if !ok || v < 512 || v > 16777215 {
			return "", true, negErr(key, "out of domain [512, 16777215]")
		}
		// Declarative, not negotiated: each direction states the max it
		// is willing to receive. The target simply records the
		// initiator's offer as the limit it must respect when sending.
		b.MaxRecvDataSegmentLength = v
		return strconv.FormatUint(uint64(defaultTargetMaxRecvDataSegmentLength), 10), true, nil

	case "MaxBurstLength":
		v, ok := parseUint32(value)
		if !ok || v < 512 || v > 16777215 {
			return "", true, negErr(key, "out of domain [512, 16777215]")
		}
		b.MaxBurstLength = minUint32(b.MaxBurstLength, v)
		return strconv.FormatUint(uint64(b.MaxBurstLength), 10), true, nil

	case "FirstBurstLength":
		v, ok := parseUint32(value)
		if !ok || v < 512 || v > 16777215 {
			return "", true, negErr(key, "out of domain [512, 16777215]")
		}
		b.FirstBurstLength = minUint32(b.FirstBurstLength, v)
		if b.FirstBurstLength > b.MaxBurstLength {
			b.FirstBurstLength = b.MaxBurstLength
		}
		return strconv.FormatUint(uint64(b.FirstBurstLength), 10), true, nil

	case "DefaultTime2Wait":
		v, ok := parseUint32(value)
		if !ok || v > 3600 {
			return "", true, negErr(key, "out of domain [0, 3600]")
		}
		b.DefaultTime2Wait = maxUint32(b.DefaultTime2Wait, v)
		return strconv.FormatUint(uint64(b.DefaultTime2Wait), 10), true, nil

	case "DefaultTime2Retain":
		v, ok := parseUint32(value)
		if !ok || v > 3600 {
			return "", true, negErr(key, "out of domain [0, 3600]")
		}
		b.DefaultTime2Retain = minUint32(b.DefaultTime2Retain, v)
		return strconv.FormatUint(uint64(b.DefaultTime2Retain), 10), true, nil

	case "MaxOutstandingR2T":
		v, ok := parseUint32(value)
		if !ok || v < 1 {
			return "", true, negErr(key, "out of domain [1, 65535]")
		}
		b.MaxOutstandingR2T = minUint32(b.MaxOutstandingR2T, v)
		return strconv.FormatUint(uint64(b.MaxOutstandingR2T), 10), true, nil

	case "InitialR2T":
		v, ok := parseYesNo(value)
		if !ok {
			return "", true, negErr(key, "not a Yes/No value")
		}
		// Result function: OR. Either side requiring R2T wins, since a
		// target that only supports R2T cannot honor InitialR2T=No.
		b.InitialR2T = b.InitialR2T || v
		return b.InitialR2T.String(), true, nil

	case "ImmediateData":
		v, ok := parseYesNo(value)
		if !ok {
			return "", true, negErr(key, "not a Yes/No value")
		}
		// Result function: AND. Both sides must support immediate data.
		b.ImmediateData = b.ImmediateData && v
		return b.ImmediateData.String(), true, nil

	case "DataPDUInOrder":
		v, ok := parseYesNo(value)
		if !ok {
			return "", true, negErr(key, "not a Yes/No value")
		}
		b.DataPDUInOrder = b.DataPDUInOrder || v
		return b.DataPDUInOrder.String(), true, nil

	case "DataSequenceInOrder":
		v, ok := parseYesNo(value)
		if !ok {
			return "", true, negErr(key, "not a Yes/No value")
		}
		b.DataSequenceInOrder = b.DataSequenceInOrder || v
		return b.DataSequenceInOrder.String(), true, nil

	case "MaxConnections":
		v, ok := parseUint32(value)
		if !ok || v < 1 {
			return "", true, negErr(key, "out of domain [1, 65535]")
		}
		// This target never supports MC/S; always reply 1 regardless of
		// what is offered, per the Non-goal.
		b.MaxConnections = 1
		return "1", true, nil

	case "ErrorRecoveryLevel":
		v, ok := parseUint32(value)
		if !ok || v > 2 {
			return "", true, negErr(key, "out of domain {0,1,2}")
		}
		// Result function: minimum. This target only implements ERL 0.
		b.ErrorRecoveryLevel = minUint32(0, v)
		return "0", true, nil

	default:
		return "", false, nil
	}
}

func parseUint32(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// defaultTargetMaxRecvDataSegmentLength is the value this target declares
// for its own MaxRecvDataSegmentLength when replying, independent of
// whatever the initiator offered for its own receive limit.
const defaultTargetMaxRecvDataSegmentLength = 65536

// TargetMaxRecvDataSegmentLength returns the data segment size limit this
// target enforces on PDUs sent to it (SCSI Command and Data-Out). The
// connection handler uses this to bound pdu.Parse once FFP is reached,
// independent of ParameterBundle.MaxRecvDataSegmentLength, which records
// the initiator's own declared receive limit instead.
func (b *ParameterBundle) TargetMaxRecvDataSegmentLength() uint32 {
	return defaultTargetMaxRecvDataSegmentLength
}
