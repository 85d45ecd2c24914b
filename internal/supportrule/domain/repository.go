package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *SupportRule) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SupportRule, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, afterID snowflake.ID, limit int) ([]*SupportRule, error)
	FindActiveForScope(ctx context.Context, db *gorm.DB, scopeID, currency string, now time.Time) ([]*SupportRule, error)
	// UpdateStatus moves a rule from one of from to to; it reports whether a row changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []RuleStatus, to RuleStatus, now time.Time) (bool, error)
	ExpireEnded(ctx context.Context, db *gorm.DB, scopeID, currency string, now time.Time) (int64, error)
}

type ListFilter struct {
	SponsorID string
	ScopeID   string
	Status    RuleStatus
}
