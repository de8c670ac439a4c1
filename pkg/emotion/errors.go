package emotion

import "errors"

var (
	// ErrUnknownLabel is returned when decoding a label name outside the set.
	ErrUnknownLabel = errors.New("emotion: unknown label")
)
