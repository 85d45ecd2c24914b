package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidInput    = errors.New("invalid_input")
	ErrRuleNotFound    = errors.New("support_rule_not_found")
	ErrBudgetExhausted = errors.New("budget_exhausted")
)

// Ledger is the single authority over a rule's budget_spent and seats_taken.
// Every method runs on the handle it is given so callers can include it in
// their own transaction.
type Ledger interface {
	// TryCommit atomically takes amount and one seat from the rule, or fails with
	// ErrBudgetExhausted without mutating anything.
	TryCommit(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, amount int64, now time.Time) (CommitToken, error)
	// Release returns a commit to the rule. Releasing the same token again is a no-op.
	Release(ctx context.Context, db *gorm.DB, token CommitToken, now time.Time) error
	ReadRemaining(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (Remaining, error)
}
