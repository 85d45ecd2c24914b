package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CommitStatus string

const (
	CommitStatusCommitted CommitStatus = "committed"
	CommitStatusReleased  CommitStatus = "released"
)

// CommitToken identifies one successful commit and is required to release it.
type CommitToken = snowflake.ID

// BudgetCommit records one unit of budget taken from a rule.
type BudgetCommit struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	RuleID     snowflake.ID `gorm:"not null;index" json:"rule_id"`
	Amount     int64        `gorm:"not null" json:"amount"`
	Status     CommitStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	ReleasedAt *time.Time   `json:"released_at,omitempty"`
}

// TableName sets the database table name.
func (BudgetCommit) TableName() string { return "budget_commits" }

// Remaining is a point-in-time read of a rule's capacity.
type Remaining struct {
	RuleID          snowflake.ID `json:"rule_id"`
	BudgetRemaining int64        `json:"budget_remaining"`
	SeatsRemaining  *int64       `json:"seats_remaining"`
}
