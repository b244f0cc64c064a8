package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// EncodeRequest builds a complete request frame.
//
// The encoding is deterministic: headers are written in ascending key order.
// The receiver stores headers in a map, so the order carries no meaning, but
// a stable order keeps frames byte-comparable in tests and captures.
//
// Parameters:
//   - path: Route path (at most 65535 bytes once UTF-8 encoded)
//   - headers: Header map, may be nil (keys and values at most 65535 bytes each)
//   - body: Opaque payload, may be nil
//
// Returns the frame bytes, or an error naming the field that does not fit.
func EncodeRequest(path string, headers map[string]string, body []byte) ([]byte, error) {
	headerLength, keys, err := headerSectionSize(path, headers)
	if err != nil {
		return nil, err
	}
	if len(body) > math.MaxInt32 || headerLength+len(body) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d header bytes + %d body bytes", ErrFrameTooLarge, headerLength, len(body))
	}

	frame := make([]byte, LengthPrefixSize+headerLength+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(headerLength))
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(body)))

	off := LengthPrefixSize
	off = putField(frame, off, path)
	binary.BigEndian.PutUint16(frame[off:], uint16(len(keys)))
	off += 2
	for _, k := range keys {
		off = putField(frame, off, k)
		off = putField(frame, off, headers[k])
	}
	copy(frame[off:], body)

	return frame, nil
}

// EncodeRequestFrame is EncodeRequest for an already built Request.
func EncodeRequestFrame(req *Request) ([]byte, error) {
	return EncodeRequest(req.Path, req.Headers, req.Body)
}

// headerSectionSize validates every field and returns headerLength together
// with the sorted header keys, in one pass over the map.
func headerSectionSize(path string, headers map[string]string) (int, []string, error) {
	if len(path) > MaxFieldLength {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(path))
	}
	if len(headers) > MaxHeaderCount {
		return 0, nil, fmt.Errorf("%w: %d", ErrTooManyHeaders, len(headers))
	}

	size := 2 + len(path) + 2
	keys := make([]string, 0, len(headers))
	for k, v := range headers {
		if len(k) > MaxFieldLength {
			return 0, nil, fmt.Errorf("%w: key %q", ErrHeaderTooLong, truncateForError(k))
		}
		if len(v) > MaxFieldLength {
			return 0, nil, fmt.Errorf("%w: value for key %q", ErrHeaderTooLong, truncateForError(k))
		}
		size += 2 + len(k) + 2 + len(v)
		keys = append(keys, k)
	}
	if size > math.MaxInt32 {
		return 0, nil, fmt.Errorf("%w: header section of %d bytes", ErrFrameTooLarge, size)
	}
	sort.Strings(keys)

	return size, keys, nil
}

func putField(dst []byte, off int, s string) int {
	binary.BigEndian.PutUint16(dst[off:], uint16(len(s)))
	off += 2
	return off + copy(dst[off:], s)
}

func truncateForError(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
