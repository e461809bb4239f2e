package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so services can translate them into coded domain errors.
//
//   - ErrNotFound: record does not exist
//   - ErrConflict: a uniqueness constraint would be violated
//   - ErrStaleVersion: the caller's version token no longer matches the stored row
//   - ErrInvalidState: record is in the wrong state for the requested mutation
//   - ErrUnavailable: backing service temporarily unavailable
//
// Validation failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStaleVersion = errors.New("stale version")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
