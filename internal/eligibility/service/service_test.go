package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/sponsorship/internal/eligibility/domain"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	rulerepository "github.com/smallbiznis/sponsorship/internal/supportrule/repository"
	"github.com/smallbiznis/sponsorship/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFindEligibleRuleOrdering(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	resolver := New(Params{DB: db, Log: zap.NewNop(), Rules: rulerepository.Provide()})
	ctx := context.Background()

	testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.AmountPerParticipant = 3000
	})
	laterStart := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.AmountPerParticipant = 6000
		r.StartAt = testutil.TimePtr(now.Add(-time.Hour))
	})
	earlierStart := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.AmountPerParticipant = 6000
		r.StartAt = testutil.TimePtr(now.Add(-2 * time.Hour))
	})

	got, err := resolver.FindEligibleRule(ctx, "program-1", "usd", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, earlierStart.ID, got.ID)

	openStart := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.AmountPerParticipant = 6000
	})
	got, err = resolver.FindEligibleRule(ctx, "program-1", "USD", now)
	require.NoError(t, err)
	assert.Equal(t, openStart.ID, got.ID)
	assert.NotEqual(t, laterStart.ID, got.ID)
}

func TestFindEligibleRuleTieBreaksOnID(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	resolver := New(Params{DB: db, Log: zap.NewNop(), Rules: rulerepository.Provide()})

	first := testutil.SeedRule(t, db, node, now, nil)
	testutil.SeedRule(t, db, node, now, nil)

	got, err := resolver.FindEligibleRule(context.Background(), "program-1", "USD", now)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestFindEligibleRuleFilters(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	resolver := New(Params{DB: db, Log: zap.NewNop(), Rules: rulerepository.Provide()})
	ctx := context.Background()

	testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) { r.Currency = "EUR" })
	testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) { r.ScopeID = "program-2" })
	testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) { r.Status = ruledomain.RuleStatusPaused })
	testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.StartAt = testutil.TimePtr(now.Add(time.Minute))
	})

	got, err := resolver.FindEligibleRule(ctx, "program-1", "USD", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = resolver.FindEligibleRule(ctx, "", "USD", now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = resolver.FindEligibleRule(ctx, "program-1", "US", now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFindEligibleRuleExpiresEndedRules(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	resolver := New(Params{DB: db, Log: zap.NewNop(), Rules: rulerepository.Provide()})

	ended := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.AmountPerParticipant = 9000
		r.EndAt = testutil.TimePtr(now)
	})
	open := testutil.SeedRule(t, db, node, now, nil)

	got, err := resolver.FindEligibleRule(context.Background(), "program-1", "USD", now)
	require.NoError(t, err)
	assert.Equal(t, open.ID, got.ID)
	assert.Equal(t, ruledomain.RuleStatusExpired, testutil.ReloadRule(t, db, ended.ID).Status)
}

func TestFindEligibleRuleIgnoresCapacity(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	resolver := New(Params{DB: db, Log: zap.NewNop(), Rules: rulerepository.Provide()})

	full := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.MaxParticipants = testutil.Int64Ptr(1)
		r.SeatsTaken = 1
		r.BudgetSpent = 5000
	})

	got, err := resolver.FindEligibleRule(context.Background(), "program-1", "USD", now)
	require.NoError(t, err)
	assert.Equal(t, full.ID, got.ID)
}
