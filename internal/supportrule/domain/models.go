package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RuleStatus string

const (
	RuleStatusActive    RuleStatus = "active"
	RuleStatusPaused    RuleStatus = "paused"
	RuleStatusExhausted RuleStatus = "exhausted"
	RuleStatusExpired   RuleStatus = "expired"
)

type ScopeType string

const (
	ScopeTypeProgram  ScopeType = "program"
	ScopeTypeCategory ScopeType = "category"
)

// SupportRule is a sponsor's commitment to subsidize participants of a scope.
// BudgetSpent and SeatsTaken are owned by the budget ledger and never written elsewhere.
type SupportRule struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	SponsorID            string            `gorm:"type:varchar(64);not null;index" json:"sponsor_id"`
	ScopeType            ScopeType         `gorm:"type:varchar(32);not null" json:"scope_type"`
	ScopeID              string            `gorm:"type:varchar(64);not null;index:ix_support_rules_scope,priority:1" json:"scope_id"`
	Currency             string            `gorm:"type:varchar(3);not null;index:ix_support_rules_scope,priority:2" json:"currency"`
	AmountPerParticipant int64             `gorm:"not null" json:"amount_per_participant"`
	BudgetTotal          int64             `gorm:"not null" json:"budget_total"`
	BudgetSpent          int64             `gorm:"not null;check:chk_support_rules_budget,budget_spent >= 0 AND budget_spent <= budget_total" json:"budget_spent"`
	MaxParticipants      *int64            `json:"max_participants,omitempty"`
	SeatsTaken           int64             `gorm:"not null;check:chk_support_rules_seats,seats_taken >= 0 AND (max_participants IS NULL OR seats_taken <= max_participants)" json:"seats_taken"`
	Status               RuleStatus        `gorm:"type:varchar(16);not null;index:ix_support_rules_scope,priority:3" json:"status"`
	StartAt              *time.Time        `json:"start_at,omitempty"`
	EndAt                *time.Time        `json:"end_at,omitempty"`
	Version              int64             `gorm:"not null" json:"version"`
	Metadata             datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt            time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (SupportRule) TableName() string { return "support_rules" }

// ActiveAt reports whether now falls in [StartAt, EndAt). Nil bounds are open.
func (r SupportRule) ActiveAt(now time.Time) bool {
	if r.StartAt != nil && now.Before(*r.StartAt) {
		return false
	}
	if r.EndAt != nil && !now.Before(*r.EndAt) {
		return false
	}
	return true
}

func (r SupportRule) BudgetRemaining() int64 {
	return r.BudgetTotal - r.BudgetSpent
}

// SeatsRemaining is nil when the rule has no participant cap.
func (r SupportRule) SeatsRemaining() *int64 {
	if r.MaxParticipants == nil {
		return nil
	}
	remaining := *r.MaxParticipants - r.SeatsTaken
	return &remaining
}
