package domain

import "errors"

var (
	ErrNotFound        = errors.New("support_rule_not_found")
	ErrInvalidID       = errors.New("invalid_support_rule_id")
	ErrInvalidSponsor  = errors.New("invalid_sponsor_id")
	ErrInvalidScope    = errors.New("invalid_scope")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidAmount   = errors.New("invalid_amount_per_participant")
	ErrInvalidBudget   = errors.New("invalid_budget_total")
	ErrInvalidMaxSeats = errors.New("invalid_max_participants")
	ErrInvalidWindow   = errors.New("invalid_time_window")
	ErrInvalidStatus   = errors.New("invalid_status_transition")
)
