package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Allocation is one participant's claim on a rule's budget for one program.
// At most one reserved or captured allocation exists per (RuleID, UserID, ProgramID).
type Allocation struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	RuleID     snowflake.ID      `gorm:"not null;index" json:"rule_id"`
	SponsorID  string            `gorm:"type:varchar(64);not null" json:"sponsor_id"`
	ProgramID  string            `gorm:"type:varchar(64);not null" json:"program_id"`
	UserID     string            `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Amount     int64             `gorm:"not null" json:"amount"`
	Currency   string            `gorm:"type:varchar(3);not null" json:"currency"`
	Status     Status            `gorm:"type:varchar(16);not null;index:ix_allocations_status_reserved_at,priority:1" json:"status"`
	CommitID   snowflake.ID      `gorm:"not null" json:"commit_id"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	ReservedAt time.Time         `gorm:"not null;index:ix_allocations_status_reserved_at,priority:2" json:"reserved_at"`
	CapturedAt *time.Time        `json:"captured_at,omitempty"`
	ReleasedAt *time.Time        `json:"released_at,omitempty"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Allocation) TableName() string { return "allocations" }
