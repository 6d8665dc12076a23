package contracts

import "errors"

var (
	// ErrInvalidCriteria is reported before any entity is evaluated
	ErrInvalidCriteria = errors.New("invalid criteria")

	ErrNotFound = errors.New("not found")

	// ErrNoData means the storage collaborator holds nothing to screen
	ErrNoData = errors.New("no data")
)
