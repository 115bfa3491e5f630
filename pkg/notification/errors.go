package notification

import "errors"

var (
	// ErrInvalidType is returned when a record type is outside [0, NumTypes).
	ErrInvalidType = errors.New("notification: type out of range")

	// ErrPayloadTooLarge is returned when header plus payload exceeds MaxRecordSize.
	ErrPayloadTooLarge = errors.New("notification: payload too large")

	// ErrShortRecord is returned when decoding fewer bytes than a record header.
	ErrShortRecord = errors.New("notification: short record")

	// ErrLengthMismatch is returned when the encoded length sub-field does not
	// describe the buffer being decoded.
	ErrLengthMismatch = errors.New("notification: length field mismatch")
)
