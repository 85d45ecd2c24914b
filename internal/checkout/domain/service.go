package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	"github.com/smallbiznis/sponsorship/internal/pricing"
	transactiondomain "github.com/smallbiznis/sponsorship/internal/transaction/domain"
)

type JoinRequest struct {
	ProgramID string
	UserID    string
	CreatorID string
	ScopeID   string
	Currency  string
	BasePrice int64
}

// JoinResult carries the quote shown to the member. Allocation is nil when the
// join is unsponsored.
type JoinResult struct {
	Allocation *allocationdomain.Allocation `json:"allocation,omitempty"`
	Pricing    pricing.Breakdown            `json:"pricing"`
}

type CompleteRequest struct {
	AllocationID *snowflake.ID
	ProgramID    string
	UserID       string
	CreatorID    string
	Currency     string
	BasePrice    int64
}

// Service drives a join from quote to recorded transaction. Contention for
// sponsorship never fails a join; it falls back to full price.
type Service interface {
	Join(ctx context.Context, req JoinRequest) (*JoinResult, error)
	Complete(ctx context.Context, req CompleteRequest) (*transactiondomain.Transaction, error)
	Abandon(ctx context.Context, allocationID snowflake.ID) (*allocationdomain.Allocation, error)
}
