package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	// AllocationID is nil for an unsponsored join.
	AllocationID *snowflake.ID
	BasePrice    int64
	Currency     string
	ProgramID    string
	UserID       string
	CreatorID    string
}

type Service interface {
	// RecordCompletedTransaction is idempotent per allocation: a retry returns the stored record.
	RecordCompletedTransaction(ctx context.Context, req RecordRequest) (*Transaction, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Transaction, error)
}
