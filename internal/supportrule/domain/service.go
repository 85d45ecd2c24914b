package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsorship/pkg/db/pagination"
)

type CreateRuleRequest struct {
	SponsorID            string
	ScopeType            ScopeType
	ScopeID              string
	Currency             string
	AmountPerParticipant int64
	BudgetTotal          int64
	MaxParticipants      *int64
	StartAt              *time.Time
	EndAt                *time.Time
	Metadata             map[string]any
}

type ListRulesRequest struct {
	pagination.Pagination
	SponsorID string
	ScopeID   string
	Status    string
}

type ListRulesResponse struct {
	pagination.PageInfo
	Rules []*SupportRule `json:"rules"`
}

// Service manages rule definitions. Budget counters are not writable through it.
type Service interface {
	Create(ctx context.Context, req CreateRuleRequest) (*SupportRule, error)
	GetByID(ctx context.Context, id snowflake.ID) (*SupportRule, error)
	List(ctx context.Context, req ListRulesRequest) (ListRulesResponse, error)
	Pause(ctx context.Context, id snowflake.ID) (*SupportRule, error)
	Resume(ctx context.Context, id snowflake.ID) (*SupportRule, error)
}
