package domain

import (
	"context"
	"errors"
	"time"

	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
)

var ErrInvalidInput = errors.New("invalid_input")

// Resolver picks the rule that sponsors a join. It does not check remaining
// capacity; the ledger decides that at commit time.
type Resolver interface {
	// FindEligibleRule returns nil, nil when no rule matches.
	FindEligibleRule(ctx context.Context, scopeID, currency string, now time.Time) (*ruledomain.SupportRule, error)
}
