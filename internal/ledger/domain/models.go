package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeTransaction LedgerSourceType = "transaction" // completed join, sponsored or not
)

type LedgerAccountCode string

const (
	// Funding
	AccountCodeMemberPayments       LedgerAccountCode = "member_payments"
	AccountCodeSponsorContributions LedgerAccountCode = "sponsor_contributions"

	// Payouts
	AccountCodeCreatorPayable  LedgerAccountCode = "creator_payable"
	AccountCodePlatformRevenue LedgerAccountCode = "platform_revenue"
)

// LedgerEntry captures the immutable header for a financial event.
// A source produces at most one entry.
type LedgerEntry struct {
	ID         snowflake.ID     `gorm:"primaryKey" json:"id"`
	SourceType LedgerSourceType `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_entries_source,priority:1" json:"source_type"`
	SourceID   snowflake.ID     `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:2" json:"source_id"`
	Currency   string           `gorm:"type:varchar(3);not null" json:"currency"`
	OccurredAt time.Time        `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time        `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey" json:"id"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index" json:"ledger_entry_id"`
	AccountCode   LedgerAccountCode    `gorm:"type:varchar(32);not null;index" json:"account_code"`
	Direction     LedgerEntryDirection `gorm:"type:varchar(8);not null" json:"direction"`
	Amount        int64                `gorm:"not null" json:"amount"`
	CreatedAt     time.Time            `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }
