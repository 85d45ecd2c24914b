package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SeedRule inserts an active rule for scope "program-1" in USD paying 5000 per
// participant from a 50000 budget. mutate adjusts the defaults before insert.
func SeedRule(t *testing.T, db *gorm.DB, node *snowflake.Node, now time.Time, mutate func(*ruledomain.SupportRule)) *ruledomain.SupportRule {
	t.Helper()

	rule := &ruledomain.SupportRule{
		ID:                   node.Generate(),
		SponsorID:            "sponsor-1",
		ScopeType:            ruledomain.ScopeTypeProgram,
		ScopeID:              "program-1",
		Currency:             "USD",
		AmountPerParticipant: 5000,
		BudgetTotal:          50000,
		Status:               ruledomain.RuleStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if mutate != nil {
		mutate(rule)
	}
	require.NoError(t, db.Create(rule).Error)
	return rule
}

func ReloadRule(t *testing.T, db *gorm.DB, id snowflake.ID) *ruledomain.SupportRule {
	t.Helper()
	var rule ruledomain.SupportRule
	require.NoError(t, db.Where("id = ?", id).First(&rule).Error)
	return &rule
}

func Int64Ptr(v int64) *int64 { return &v }

func TimePtr(t time.Time) *time.Time { return &t }
