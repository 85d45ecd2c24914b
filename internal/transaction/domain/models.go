package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of a completed join.
// Money fields are derived from persisted inputs, never taken from the caller.
type Transaction struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	AllocationID   *snowflake.ID   `gorm:"uniqueIndex:ux_transactions_allocation" json:"allocation_id,omitempty"`
	ProgramID      string          `gorm:"type:varchar(64);not null;index" json:"program_id"`
	UserID         string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	CreatorID      string          `gorm:"type:varchar(64);not null;index" json:"creator_id"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	BasePrice      int64           `gorm:"not null" json:"base_price"`
	SponsorAmount  int64           `gorm:"not null" json:"sponsor_amount"`
	UserPays       int64           `gorm:"not null" json:"user_pays"`
	CreatorEarning int64           `gorm:"not null" json:"creator_earning"`
	PlatformFee    int64           `gorm:"not null" json:"platform_fee"`
	CreatorShare   decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"creator_share"`
	RecordedAt     time.Time       `gorm:"not null" json:"recorded_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

func (t Transaction) Sponsored() bool {
	return t.SponsorAmount > 0
}
