package domain

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid_input")
	ErrAllocationNotCaptured = errors.New("allocation_not_captured")
	ErrNotFound              = errors.New("transaction_not_found")
)
