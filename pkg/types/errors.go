package types

import "errors"

// Scheme-related errors
var (
	// ErrInvalidScheme is returned when a partition scheme is structurally invalid
	ErrInvalidScheme = errors.New("invalid partition scheme")

	// ErrInvalidBounds is returned when range bounds are unsorted, overlapping or have gaps
	ErrInvalidBounds = errors.New("invalid range bounds")

	// ErrUnknownStrategy is returned for a strategy other than hash or range
	ErrUnknownStrategy = errors.New("unknown partition strategy")

	// ErrUnknownKeyType is returned for an unsupported key type name
	ErrUnknownKeyType = errors.New("unknown key type")

	// ErrCoerce is returned when a value cannot be represented in a key type
	ErrCoerce = errors.New("value not coercible to key type")
)
