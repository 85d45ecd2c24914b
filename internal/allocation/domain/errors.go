package domain

import "errors"

var (
	ErrNotFound               = errors.New("allocation_not_found")
	ErrInvalidInput           = errors.New("invalid_input")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrSponsorshipUnavailable = errors.New("sponsorship_unavailable")
)
