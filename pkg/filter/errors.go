package filter

import "errors"

var (
	ErrEmptySpec       = errors.New("filter: no accepted types")
	ErrTooManyFilters  = errors.New("filter: too many per-type entries")
	ErrTypeOutOfRange  = errors.New("filter: type out of range")
	ErrTypeNotAccepted = errors.New("filter: per-type entry for a type not in accepted_types")
	ErrLengthMasked    = errors.New("filter: info mask may not cover the length field")
	ErrInfoOutsideMask = errors.New("filter: info filter sets bits outside info mask")

	// ErrFailedToParseYAML is returned when a YAML filter document can not be decoded.
	ErrFailedToParseYAML = errors.New("filter: failed to parse yaml")
)
