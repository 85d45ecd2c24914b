package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsorship/internal/budget/domain"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	rulerepository "github.com/smallbiznis/sponsorship/internal/supportrule/repository"
	"github.com/smallbiznis/sponsorship/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, *snowflake.Node, domain.Ledger) {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	ledger := New(Params{Log: zap.NewNop(), GenID: node, Rules: rulerepository.Provide()})
	return db, node, ledger
}

func TestTryCommitUntilExhausted(t *testing.T) {
	db, node, ledger := setup(t)
	ctx := context.Background()
	rule := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.AmountPerParticipant = 4000
		r.BudgetTotal = 10000
	})

	_, err := ledger.TryCommit(ctx, db, rule.ID, 4000, now)
	require.NoError(t, err)
	_, err = ledger.TryCommit(ctx, db, rule.ID, 4000, now)
	require.NoError(t, err)

	_, err = ledger.TryCommit(ctx, db, rule.ID, 4000, now)
	assert.ErrorIs(t, err, domain.ErrBudgetExhausted)

	// A smaller commit still fits the remaining 2000.
	_, err = ledger.TryCommit(ctx, db, rule.ID, 2000, now)
	require.NoError(t, err)

	reloaded := testutil.ReloadRule(t, db, rule.ID)
	assert.Equal(t, int64(10000), reloaded.BudgetSpent)
	assert.Equal(t, int64(3), reloaded.SeatsTaken)
	assert.Equal(t, ruledomain.RuleStatusExhausted, reloaded.Status)
	assert.Equal(t, int64(3), reloaded.Version)
}

func TestTryCommitSeatCap(t *testing.T) {
	db, node, ledger := setup(t)
	ctx := context.Background()
	rule := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.MaxParticipants = testutil.Int64Ptr(2)
	})

	for i := 0; i < 2; i++ {
		_, err := ledger.TryCommit(ctx, db, rule.ID, 5000, now)
		require.NoError(t, err)
	}
	_, err := ledger.TryCommit(ctx, db, rule.ID, 5000, now)
	assert.ErrorIs(t, err, domain.ErrBudgetExhausted)

	remaining, err := ledger.ReadRemaining(ctx, db, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), remaining.BudgetRemaining)
	require.NotNil(t, remaining.SeatsRemaining)
	assert.Equal(t, int64(0), *remaining.SeatsRemaining)
}

func TestTryCommitRejections(t *testing.T) {
	db, node, ledger := setup(t)
	ctx := context.Background()
	rule := testutil.SeedRule(t, db, node, now, nil)

	_, err := ledger.TryCommit(ctx, db, rule.ID, 0, now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ledger.TryCommit(ctx, db, rule.ID, rule.AmountPerParticipant+1, now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ledger.TryCommit(ctx, db, node.Generate(), 100, now)
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)

	reloaded := testutil.ReloadRule(t, db, rule.ID)
	assert.Equal(t, int64(0), reloaded.BudgetSpent)
	assert.Equal(t, int64(0), reloaded.Version)
}

func TestTryCommitOutsideWindow(t *testing.T) {
	db, node, ledger := setup(t)
	ctx := context.Background()
	rule := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.StartAt = testutil.TimePtr(now.Add(time.Hour))
		r.EndAt = testutil.TimePtr(now.Add(2 * time.Hour))
	})

	_, err := ledger.TryCommit(ctx, db, rule.ID, 1000, now)
	assert.ErrorIs(t, err, domain.ErrBudgetExhausted)

	_, err = ledger.TryCommit(ctx, db, rule.ID, 1000, now.Add(90*time.Minute))
	require.NoError(t, err)

	_, err = ledger.TryCommit(ctx, db, rule.ID, 1000, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrBudgetExhausted)
}

func TestReleaseIsIdempotent(t *testing.T) {
	db, node, ledger := setup(t)
	ctx := context.Background()
	rule := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.BudgetTotal = 5000
	})

	token, err := ledger.TryCommit(ctx, db, rule.ID, 5000, now)
	require.NoError(t, err)
	assert.Equal(t, ruledomain.RuleStatusExhausted, testutil.ReloadRule(t, db, rule.ID).Status)

	require.NoError(t, ledger.Release(ctx, db, token, now))
	require.NoError(t, ledger.Release(ctx, db, token, now))

	reloaded := testutil.ReloadRule(t, db, rule.ID)
	assert.Equal(t, int64(0), reloaded.BudgetSpent)
	assert.Equal(t, int64(0), reloaded.SeatsTaken)
	assert.Equal(t, ruledomain.RuleStatusActive, reloaded.Status)

	var commit domain.BudgetCommit
	require.NoError(t, db.Where("id = ?", token).First(&commit).Error)
	assert.Equal(t, domain.CommitStatusReleased, commit.Status)
	assert.NotNil(t, commit.ReleasedAt)
}

func TestReleaseKeepsPausedStatus(t *testing.T) {
	db, node, ledger := setup(t)
	ctx := context.Background()
	rule := testutil.SeedRule(t, db, node, now, nil)

	token, err := ledger.TryCommit(ctx, db, rule.ID, 5000, now)
	require.NoError(t, err)
	require.NoError(t, db.Model(&ruledomain.SupportRule{}).Where("id = ?", rule.ID).Update("status", ruledomain.RuleStatusPaused).Error)

	require.NoError(t, ledger.Release(ctx, db, token, now))
	reloaded := testutil.ReloadRule(t, db, rule.ID)
	assert.Equal(t, ruledomain.RuleStatusPaused, reloaded.Status)
	assert.Equal(t, int64(0), reloaded.BudgetSpent)
}

func TestReleaseUnknownToken(t *testing.T) {
	db, _, ledger := setup(t)
	assert.ErrorIs(t, ledger.Release(context.Background(), db, 0, now), domain.ErrInvalidInput)
	assert.ErrorIs(t, ledger.Release(context.Background(), db, 777, now), domain.ErrInvalidInput)
}

func TestConcurrentCommitsNeverOverspend(t *testing.T) {
	db, node, ledger := setup(t)
	ctx := context.Background()
	rule := testutil.SeedRule(t, db, node, now, func(r *ruledomain.SupportRule) {
		r.AmountPerParticipant = 3000
		r.BudgetTotal = 10000
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.TryCommit(ctx, db, rule.ID, 3000, now); err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, committed)
	reloaded := testutil.ReloadRule(t, db, rule.ID)
	assert.Equal(t, int64(9000), reloaded.BudgetSpent)
	assert.LessOrEqual(t, reloaded.BudgetSpent, reloaded.BudgetTotal)
}
