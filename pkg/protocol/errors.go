package protocol

import "errors"

var (
	// ErrPathTooLong is returned when a path exceeds MaxFieldLength bytes.
	ErrPathTooLong = errors.New("protocol: path too long (max 65535 bytes in UTF-8)")

	// ErrHeaderTooLong is returned when a header key or value exceeds
	// MaxFieldLength bytes. The wrapping error names the offending key.
	ErrHeaderTooLong = errors.New("protocol: header too long (max 65535 bytes in UTF-8)")

	// ErrTooManyHeaders is returned when more than MaxHeaderCount headers are
	// supplied.
	ErrTooManyHeaders = errors.New("protocol: too many headers")

	// ErrNegativeLength is returned when a length prefix has its top bit set.
	ErrNegativeLength = errors.New("protocol: negative frame length")

	// ErrFrameTooLarge is returned when a frame exceeds the allowed size.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrMalformedHeader is returned when the header section is truncated or
	// has trailing bytes.
	ErrMalformedHeader = errors.New("protocol: malformed header section")

	// ErrIncomplete is returned when frame sections are requested from an
	// accumulator that has not yet received the whole frame.
	ErrIncomplete = errors.New("protocol: frame incomplete")
)
