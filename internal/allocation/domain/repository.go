package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent reports false when an active allocation already holds the triple.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, allocation *Allocation) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Allocation, error)
	FindActive(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, userID, programID string) (*Allocation, error)
	// MarkCaptured and MarkReleased move a reserved row; false means the row was not reserved.
	MarkCaptured(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkReleased(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	ListReservedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Allocation, error)
}
