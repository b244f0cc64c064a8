package protocol

import (
	"encoding/binary"
	"fmt"
)

// DecodeRequest parses the header section of a frame and pairs it with the
// body.
//
// The body slice is used as-is; callers that hand in a shared buffer must
// copy it first (Accumulator.BodyBytes already does).
//
// Duplicate header keys are allowed on the wire; the last occurrence wins.
func DecodeRequest(headerBytes, bodyBytes []byte) (*Request, error) {
	r := headerReader{buf: headerBytes}

	path, err := r.field("path")
	if err != nil {
		return nil, err
	}

	count, err := r.uint16("header count")
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		key, err := r.field(fmt.Sprintf("header %d key", i))
		if err != nil {
			return nil, err
		}
		value, err := r.field(fmt.Sprintf("header %d value", i))
		if err != nil {
			return nil, err
		}
		headers[key] = value
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedHeader, r.remaining())
	}

	if bodyBytes == nil {
		bodyBytes = []byte{}
	}

	return &Request{
		Path:    path,
		Headers: headers,
		Body:    bodyBytes,
	}, nil
}

// headerReader is a bounds-checked cursor over the header section.
type headerReader struct {
	buf []byte
	off int
}

func (r *headerReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *headerReader) uint16(what string) (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("%w: truncated %s at offset %d", ErrMalformedHeader, what, r.off)
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *headerReader) field(what string) (string, error) {
	n, err := r.uint16(what + " length")
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", fmt.Errorf("%w: %s needs %d bytes, %d left", ErrMalformedHeader, what, n, r.remaining())
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}
