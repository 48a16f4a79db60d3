package entry

import "errors"

var (
	// ErrInvalidType is returned for an unrecognized entry type.
	ErrInvalidType = errors.New("unrecognized entry type")
	// ErrDuplicateEntry is returned when adding a (characters, type) pair
	// that already exists.
	ErrDuplicateEntry = errors.New("entry already exists")
	// ErrNotFound is returned when operating on a missing (characters, type).
	ErrNotFound = errors.New("entry not found")
	// ErrUnresolvedComposition marks a composition reference whose target
	// entry is not known yet. Soft: logged, never fatal.
	ErrUnresolvedComposition = errors.New("composition reference not yet known")
	// ErrUpstreamSync wraps failures talking to the external source.
	ErrUpstreamSync = errors.New("upstream sync failure")
)
