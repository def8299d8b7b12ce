package pdu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxDataSegmentLength is the data segment size limit applied before
// a session has negotiated MaxRecvDataSegmentLength, per RFC 3720 the
// pre-negotiation default a target should assume for the login phase.
const DefaultMaxDataSegmentLength = 8192

// ParseErrorKind classifies why Parse failed.
type ParseErrorKind int

const (
	// ErrShortRead means fewer than BHSLen bytes were available for the BHS.
	ErrShortRead ParseErrorKind = iota
	// ErrDataTooLarge means the data segment length exceeds the caller's limit.
	ErrDataTooLarge
	// ErrBadPadding means the zero-padding bytes after the data segment were
	// non-zero. Tolerated as a warning by callers that choose to ignore it.
	ErrBadPadding
)

func (k ParseErrorKind) String() string {
	switch k {
	case ErrShortRead:
		return "short read"
	case ErrDataTooLarge:
		return "data segment too large"
	case ErrBadPadding:
		return "non-zero padding"
	default:
		return "unknown parse error"
	}
}

// ParseError reports why a PDU failed to parse.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdu: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pdu: %s", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target is a *ParseError of the same Kind, so
// errors.Is(err, &pdu.ParseError{Kind: pdu.ErrBadPadding}) matches on the kind.
func (e *ParseError) Is(target error) bool {
	var pe *ParseError
	if errors.As(target, &pe) {
		return pe.Kind == e.Kind
	}
	return false
}

func newParseError(kind ParseErrorKind, err error) *ParseError {
	return &ParseError{Kind: kind, Err: err}
}

// PDU is a parsed iSCSI Protocol Data Unit: a BHS, an optional AHS (carried
// opaque, since this target emulates no command requiring one), and a data
// segment.
type PDU struct {
	Header BHS
	AHS    []byte
	Data   []byte
}

// Opcode is a convenience accessor over Header.Opcode().
func (p *PDU) Opcode() Opcode { return p.Header.Opcode() }

// paddedLen rounds n up to the next multiple of 4, per the invariant that
// every serialized data segment (and AHS) ends on a 4-byte boundary.
func paddedLen(n int) int {
	return (n + 3) &^ 3
}

// Parse decodes a single PDU from r. maxDataSegment bounds the data segment
// length this caller will accept; pass DefaultMaxDataSegmentLength before a
// session's MaxRecvDataSegmentLength has been negotiated, or the negotiated
// value afterward.
func Parse(r io.Reader, maxDataSegment int) (*PDU, error) {
	var hdr BHS
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, newParseError(ErrShortRead, err)
	}

	p := &PDU{Header: hdr}

	if ahsWords := hdr.TotalAHSLength(); ahsWords > 0 {
		ahs := make([]byte, ahsWords*4)
		if _, err := io.ReadFull(r, ahs); err != nil {
			return nil, newParseError(ErrShortRead, fmt.Errorf("reading AHS: %w", err))
		}
		p.AHS = ahs
	}

	dsl := hdr.DataSegmentLength()
	if dsl > maxDataSegment {
		return nil, newParseError(ErrDataTooLarge, fmt.Errorf("data segment length %d exceeds limit %d", dsl, maxDataSegment))
	}

	if dsl > 0 {
		padded := paddedLen(dsl)
		buf := make([]byte, padded)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, newParseError(ErrShortRead, fmt.Errorf("reading data segment: %w", err))
		}
		for _, pad := range buf[dsl:] {
			if pad != 0 {
				// Non-fatal: the data is still usable, but flag it so the
				// caller can log or reject per policy.
				p.Data = buf[:dsl]
				return p, newParseError(ErrBadPadding, nil)
			}
		}
		p.Data = buf[:dsl]
	}

	return p, nil
}

// ParseBuffered is a convenience wrapper around Parse for callers that
// already hold a *bufio.Reader on the connection socket.
func ParseBuffered(r *bufio.Reader, maxDataSegment int) (*PDU, error) {
	return Parse(r, maxDataSegment)
}

// Serialize encodes the PDU to wire format: BHS, then AHS (already a
// multiple of 4 bytes by construction), then the data segment zero-padded
// to a 4-byte boundary. The BHS length field is updated to reflect the
// unpadded length of p.Data before encoding.
func (p *PDU) Serialize() []byte {
	p.Header.SetDataSegmentLength(len(p.Data))
	p.Header.SetTotalAHSLength(len(p.AHS) / 4)

	total := BHSLen + len(p.AHS) + paddedLen(len(p.Data))
	out := make([]byte, total)

	copy(out, p.Header[:])
	offset := BHSLen
	copy(out[offset:], p.AHS)
	offset += len(p.AHS)
	copy(out[offset:], p.Data)
	// Remaining padding bytes are already zero from make().

	return out
}

// WriteTo serializes and writes the PDU to w, retrying partial writes at
// the OS level until the whole buffer is flushed or the writer errors.
func (p *PDU) WriteTo(w io.Writer) (int64, error) {
	buf := p.Serialize()
	n, err := writeFull(w, buf)
	return int64(n), err
}

func writeFull(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// New builds a bare PDU with the given opcode and ITT, ready for the caller
// to fill in opcode-specific fields and data.
func New(op Opcode, itt uint32) *PDU {
	p := &PDU{}
	p.Header.SetOpcode(op)
	p.Header.SetITT(itt)
	return p
}
