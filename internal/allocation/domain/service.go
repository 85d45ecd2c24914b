package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReserveRequest struct {
	RuleID    snowflake.ID
	SponsorID string
	ProgramID string
	UserID    string
	Amount    int64
	Currency  string
	Metadata  map[string]any
}

// Service owns the reserved -> captured | released lifecycle.
type Service interface {
	// Reserve returns the existing active allocation for the triple when there is one,
	// otherwise commits budget and creates a reserved allocation.
	Reserve(ctx context.Context, req ReserveRequest) (*Allocation, error)
	Capture(ctx context.Context, id snowflake.ID) (*Allocation, error)
	Release(ctx context.Context, id snowflake.ID) (*Allocation, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Allocation, error)
	// ListExpiredReservations returns reservations older than olderThan, oldest first.
	ListExpiredReservations(ctx context.Context, olderThan time.Duration, limit int) ([]*Allocation, error)
}
