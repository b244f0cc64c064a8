package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ResponseSize returns the number of bytes the encoded response occupies.
func ResponseSize(resp *Response) int {
	return ResponsePrefixSize + len(resp.Body)
}

// EncodeResponseTo writes the response frame into dst and returns the number
// of bytes written. dst must hold at least ResponseSize(resp) bytes.
func EncodeResponseTo(dst []byte, resp *Response) (int, error) {
	size := ResponseSize(resp)
	if len(resp.Body) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: response body of %d bytes", ErrFrameTooLarge, len(resp.Body))
	}
	if len(dst) < size {
		return 0, fmt.Errorf("protocol: response buffer too small: need %d, have %d", size, len(dst))
	}

	binary.BigEndian.PutUint32(dst[0:4], uint32(int32(resp.StatusCode)))
	binary.BigEndian.PutUint32(dst[4:8], uint32(len(resp.Body)))
	copy(dst[ResponsePrefixSize:], resp.Body)

	return size, nil
}

// EncodeResponse allocates and returns a response frame.
func EncodeResponse(resp *Response) ([]byte, error) {
	buf := make([]byte, ResponseSize(resp))
	if _, err := EncodeResponseTo(buf, resp); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadResponse reads one response frame from r.
//
// maxBodySize bounds the body allocation; a non-positive value selects
// DefaultMaxFrameSize.
func ReadResponse(r io.Reader, maxBodySize int) (*Response, error) {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxFrameSize
	}

	var prefix [ResponsePrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	status := int32(binary.BigEndian.Uint32(prefix[0:4]))
	length := int32(binary.BigEndian.Uint32(prefix[4:8]))
	if length < 0 {
		return nil, fmt.Errorf("%w: body=%d", ErrNegativeLength, length)
	}
	if int64(length) > int64(maxBodySize) {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrFrameTooLarge, length, maxBodySize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{StatusCode: int(status), Body: body}, nil
}
