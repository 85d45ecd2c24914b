package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateEntryRequest struct {
	SourceType LedgerSourceType
	SourceID   snowflake.ID
	Currency   string
	OccurredAt time.Time
	Lines      []LedgerEntryLine
}

type Service interface {
	// CreateEntry posts a balanced entry on db, which may be an open transaction.
	// A second entry for the same source is ignored.
	CreateEntry(ctx context.Context, db *gorm.DB, req CreateEntryRequest) (bool, error)
	ListEntryLines(ctx context.Context, sourceType LedgerSourceType, sourceID snowflake.ID) ([]LedgerEntryLine, error)
}

// ValidateBalanced checks that debits equal credits.
func ValidateBalanced(lines []LedgerEntryLine) error {
	var debit, credit int64
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debit += line.Amount
		case LedgerEntryDirectionCredit:
			credit += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}
