package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *domain.SupportRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SupportRule, error) {
	var rule domain.SupportRule
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, afterID snowflake.ID, limit int) ([]*domain.SupportRule, error) {
	var rules []*domain.SupportRule
	stmt := db.WithContext(ctx).Model(&domain.SupportRule{})
	if filter.SponsorID != "" {
		stmt = stmt.Where("sponsor_id = ?", filter.SponsorID)
	}
	if filter.ScopeID != "" {
		stmt = stmt.Where("scope_id = ?", filter.ScopeID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	if err := stmt.Order("id asc").Limit(limit).Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) FindActiveForScope(ctx context.Context, db *gorm.DB, scopeID, currency string, now time.Time) ([]*domain.SupportRule, error) {
	var rules []*domain.SupportRule
	err := db.WithContext(ctx).
		Where("scope_id = ? AND currency = ? AND status = ?", scopeID, currency, domain.RuleStatusActive).
		Where("(start_at IS NULL OR start_at <= ?) AND (end_at IS NULL OR end_at > ?)", now, now).
		Order("id asc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.RuleStatus, to domain.RuleStatus, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE support_rules
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ExpireEnded(ctx context.Context, db *gorm.DB, scopeID, currency string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE support_rules
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE scope_id = ? AND currency = ?
		   AND status IN ?
		   AND end_at IS NOT NULL AND end_at <= ?`,
		domain.RuleStatusExpired,
		now,
		scopeID,
		currency,
		[]domain.RuleStatus{domain.RuleStatusActive, domain.RuleStatusPaused, domain.RuleStatusExhausted},
		now,
	)
	return result.RowsAffected, result.Error
}
