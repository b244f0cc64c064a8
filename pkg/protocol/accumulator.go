package protocol

import (
	"encoding/binary"
	"fmt"
)

// AccumulatorState is the reassembly progress of a single frame.
type AccumulatorState int

const (
	// AwaitingLengths means fewer than 8 bytes have been received.
	AwaitingLengths AccumulatorState = iota
	// AwaitingPayload means both lengths are known and the payload buffer is
	// partially filled.
	AwaitingPayload
	// Complete means the payload buffer is fully written.
	Complete
)

func (s AccumulatorState) String() string {
	switch s {
	case AwaitingLengths:
		return "AWAITING_LENGTHS"
	case AwaitingPayload:
		return "AWAITING_PAYLOAD"
	case Complete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Accumulator incrementally reassembles one request frame from arbitrarily
// chunked reads.
//
// An Accumulator is not safe for concurrent use and is single-shot: once a
// frame is complete, further Feed calls consume nothing. A connection creates
// a fresh Accumulator for every request so successive requests never share
// decoder state.
type Accumulator struct {
	maxFrameSize int

	prefix    [LengthPrefixSize]byte
	prefixLen int

	headerLength int
	bodyLength   int
	lengthsKnown bool

	payload []byte
	written int
}

// NewAccumulator creates an accumulator that rejects frames whose
// headerLength+bodyLength exceeds maxFrameSize. A non-positive maxFrameSize
// selects DefaultMaxFrameSize.
func NewAccumulator(maxFrameSize int) *Accumulator {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Accumulator{maxFrameSize: maxFrameSize}
}

// Feed appends bytes from chunk and returns how many were consumed.
//
// The 8-byte length prefix is filled first, across calls if needed. Once it
// is complete the lengths are validated (negative or oversized frames are
// rejected before any payload allocation) and a payload buffer of exactly
// headerLength+bodyLength bytes is allocated. Remaining bytes are copied into
// the payload without ever writing past its end, so consumed < len(chunk)
// only when the frame completed inside this chunk.
//
// After an error the accumulator must be discarded.
func (a *Accumulator) Feed(chunk []byte) (int, error) {
	consumed := 0

	if !a.lengthsKnown {
		n := copy(a.prefix[a.prefixLen:], chunk)
		a.prefixLen += n
		consumed += n
		if a.prefixLen < LengthPrefixSize {
			return consumed, nil
		}
		if err := a.parseLengths(); err != nil {
			return consumed, err
		}
	}

	if a.written < len(a.payload) {
		n := copy(a.payload[a.written:], chunk[consumed:])
		a.written += n
		consumed += n
	}

	return consumed, nil
}

func (a *Accumulator) parseLengths() error {
	headerLength := int32(binary.BigEndian.Uint32(a.prefix[0:4]))
	bodyLength := int32(binary.BigEndian.Uint32(a.prefix[4:8]))

	if headerLength < 0 || bodyLength < 0 {
		return fmt.Errorf("%w: header=%d body=%d", ErrNegativeLength, headerLength, bodyLength)
	}

	total := int64(headerLength) + int64(bodyLength)
	if total > int64(a.maxFrameSize) {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrFrameTooLarge, total, a.maxFrameSize)
	}

	a.headerLength = int(headerLength)
	a.bodyLength = int(bodyLength)
	a.payload = make([]byte, total)
	a.lengthsKnown = true
	return nil
}

// State reports the reassembly progress.
func (a *Accumulator) State() AccumulatorState {
	switch {
	case !a.lengthsKnown:
		return AwaitingLengths
	case a.written < len(a.payload):
		return AwaitingPayload
	default:
		return Complete
	}
}

// IsComplete reports whether both lengths are known and the payload is fully
// written.
func (a *Accumulator) IsComplete() bool {
	return a.State() == Complete
}

// Started reports whether at least one byte of the frame has arrived.
func (a *Accumulator) Started() bool {
	return a.prefixLen > 0
}

// Lengths returns the header and body lengths once the prefix is complete.
func (a *Accumulator) Lengths() (headerLength, bodyLength int, ok bool) {
	return a.headerLength, a.bodyLength, a.lengthsKnown
}

// HeaderBytes returns a copy of the header section.
func (a *Accumulator) HeaderBytes() ([]byte, error) {
	if !a.IsComplete() {
		return nil, ErrIncomplete
	}
	out := make([]byte, a.headerLength)
	copy(out, a.payload[:a.headerLength])
	return out, nil
}

// BodyBytes returns a copy of the body section.
func (a *Accumulator) BodyBytes() ([]byte, error) {
	if !a.IsComplete() {
		return nil, ErrIncomplete
	}
	out := make([]byte, a.bodyLength)
	copy(out, a.payload[a.headerLength:])
	return out, nil
}

// Request decodes the completed frame.
func (a *Accumulator) Request() (*Request, error) {
	header, err := a.HeaderBytes()
	if err != nil {
		return nil, err
	}
	body, err := a.BodyBytes()
	if err != nil {
		return nil, err
	}
	return DecodeRequest(header, body)
}
