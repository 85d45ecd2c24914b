package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsorship/internal/allocation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, allocation *domain.Allocation) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(allocation)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Allocation, error) {
	var allocation domain.Allocation
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&allocation).Error
	if err != nil {
		return nil, err
	}
	if allocation.ID == 0 {
		return nil, nil
	}
	return &allocation, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, userID, programID string) (*domain.Allocation, error) {
	var allocation domain.Allocation
	err := db.WithContext(ctx).
		Where("rule_id = ? AND user_id = ? AND program_id = ? AND status IN ?", ruleID, userID, programID, domain.ActiveStatuses).
		Limit(1).
		Find(&allocation).Error
	if err != nil {
		return nil, err
	}
	if allocation.ID == 0 {
		return nil, nil
	}
	return &allocation, nil
}

func (r *repo) MarkCaptured(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE allocations SET status = ?, captured_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusCaptured,
		now,
		now,
		id,
		domain.StatusReserved,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkReleased(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE allocations SET status = ?, released_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusReleased,
		now,
		now,
		id,
		domain.StatusReserved,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListReservedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*domain.Allocation, error) {
	var allocations []*domain.Allocation
	stmt := db.WithContext(ctx).
		Where("status = ? AND reserved_at < ?", domain.StatusReserved, cutoff).
		Order("reserved_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&allocations).Error; err != nil {
		return nil, err
	}
	return allocations, nil
}
