package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/sponsorship/internal/allocation/domain"
	"github.com/smallbiznis/sponsorship/internal/allocation/repository"
	budgetdomain "github.com/smallbiznis/sponsorship/internal/budget/domain"
	budgetservice "github.com/smallbiznis/sponsorship/internal/budget/service"
	"github.com/smallbiznis/sponsorship/internal/clock"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	rulerepository "github.com/smallbiznis/sponsorship/internal/supportrule/repository"
	"github.com/smallbiznis/sponsorship/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   domain.Service
	rule  *ruledomain.SupportRule
}

func newFixture(t *testing.T, mutate func(*ruledomain.SupportRule)) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	rules := rulerepository.Provide()
	ledger := budgetservice.New(budgetservice.Params{Log: zap.NewNop(), GenID: node, Rules: rules})

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Repo:   repository.Provide(),
		Ledger: ledger,
		Rules:  rules,
	})
	rule := testutil.SeedRule(t, db, node, clk.Now(), mutate)
	return &fixture{db: db, clock: clk, svc: svc, rule: rule}
}

func (f *fixture) request(userID string) domain.ReserveRequest {
	return domain.ReserveRequest{
		RuleID:    f.rule.ID,
		SponsorID: f.rule.SponsorID,
		ProgramID: "program-1",
		UserID:    userID,
		Amount:    f.rule.AmountPerParticipant,
		Currency:  "usd",
	}
}

func (f *fixture) commitCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&budgetdomain.BudgetCommit{}).Where("rule_id = ?", f.rule.ID).Count(&count).Error)
	return count
}

func TestReserveTwiceReturnsSameAllocation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, first.Status)
	assert.Equal(t, "USD", first.Currency)

	second, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rule := testutil.ReloadRule(t, f.db, f.rule.ID)
	assert.Equal(t, int64(5000), rule.BudgetSpent)
	assert.Equal(t, int64(1), rule.SeatsTaken)
	assert.Equal(t, int64(1), f.commitCount(t))
}

func TestReserveOnCapturedTripleReturnsExisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reserved, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)
	_, err = f.svc.Capture(ctx, reserved.ID)
	require.NoError(t, err)

	again, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)
	assert.Equal(t, reserved.ID, again.ID)
	assert.Equal(t, domain.StatusCaptured, again.Status)
	assert.Equal(t, int64(1), f.commitCount(t))
}

func TestReserveOpaqueIDsWithSeparatorsDoNotCollide(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.request("a:b")
	first.ProgramID = "c"
	a, err := f.svc.Reserve(ctx, first)
	require.NoError(t, err)

	second := f.request("a")
	second.ProgramID = "b:c"
	b, err := f.svc.Reserve(ctx, second)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "a", b.UserID)
	assert.Equal(t, "b:c", b.ProgramID)
	assert.Equal(t, int64(2), f.commitCount(t))
}

func TestConcurrentReserveSingleSeat(t *testing.T) {
	f := newFixture(t, func(r *ruledomain.SupportRule) {
		r.MaxParticipants = testutil.Int64Ptr(1)
	})
	ctx := context.Background()

	const n = 8
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		reserved    int
		unavailable int
		other       []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Reserve(ctx, f.request(fmt.Sprintf("user-%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				reserved++
			case errors.Is(err, domain.ErrSponsorshipUnavailable):
				unavailable++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, reserved)
	assert.Equal(t, n-1, unavailable)

	rule := testutil.ReloadRule(t, f.db, f.rule.ID)
	assert.Equal(t, int64(1), rule.SeatsTaken)
	assert.Equal(t, ruledomain.RuleStatusExhausted, rule.Status)
	assert.LessOrEqual(t, rule.BudgetSpent, rule.BudgetTotal)
}

func TestConcurrentReserveNeverOverspends(t *testing.T) {
	f := newFixture(t, func(r *ruledomain.SupportRule) {
		r.BudgetTotal = 12000
		r.AmountPerParticipant = 5000
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.svc.Reserve(ctx, f.request(fmt.Sprintf("user-%d", i)))
		}(i)
	}
	wg.Wait()

	rule := testutil.ReloadRule(t, f.db, f.rule.ID)
	assert.Equal(t, int64(10000), rule.BudgetSpent)
	assert.Equal(t, int64(2), rule.SeatsTaken)
	assert.LessOrEqual(t, rule.BudgetSpent, rule.BudgetTotal)
}

func TestReserveReleaseReserveRecommits(t *testing.T) {
	f := newFixture(t, func(r *ruledomain.SupportRule) {
		r.MaxParticipants = testutil.Int64Ptr(1)
	})
	ctx := context.Background()

	first, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)

	released, err := f.svc.Release(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, released.Status)
	require.NotNil(t, released.ReleasedAt)

	rule := testutil.ReloadRule(t, f.db, f.rule.ID)
	assert.Equal(t, int64(0), rule.BudgetSpent)
	assert.Equal(t, int64(0), rule.SeatsTaken)
	assert.Equal(t, ruledomain.RuleStatusActive, rule.Status)

	second, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.CommitID, second.CommitID)
	assert.Equal(t, int64(2), f.commitCount(t))

	rule = testutil.ReloadRule(t, f.db, f.rule.ID)
	assert.Equal(t, int64(5000), rule.BudgetSpent)
}

func TestCaptureTwiceIsInvalidTransition(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reserved, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)

	captured, err := f.svc.Capture(ctx, reserved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, captured.Status)
	assert.NotNil(t, captured.CapturedAt)

	_, err = f.svc.Capture(ctx, reserved.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestReleaseCapturedIsInvalidTransition(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reserved, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)
	_, err = f.svc.Capture(ctx, reserved.ID)
	require.NoError(t, err)

	_, err = f.svc.Release(ctx, reserved.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	rule := testutil.ReloadRule(t, f.db, f.rule.ID)
	assert.Equal(t, int64(5000), rule.BudgetSpent)
}

func TestCaptureReleasedIsInvalidTransition(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reserved, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, reserved.ID)
	require.NoError(t, err)

	_, err = f.svc.Capture(ctx, reserved.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Release(ctx, reserved.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUnknownAllocationIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Capture(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Release(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetByID(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReserveValidatesAgainstRule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	wrongSponsor := f.request("user-1")
	wrongSponsor.SponsorID = "someone-else"
	_, err := f.svc.Reserve(ctx, wrongSponsor)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	wrongCurrency := f.request("user-1")
	wrongCurrency.Currency = "EUR"
	_, err = f.svc.Reserve(ctx, wrongCurrency)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	tooMuch := f.request("user-1")
	tooMuch.Amount = f.rule.AmountPerParticipant + 1
	_, err = f.svc.Reserve(ctx, tooMuch)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	missingUser := f.request("")
	_, err = f.svc.Reserve(ctx, missingUser)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, int64(0), f.commitCount(t))
}

func TestReservePausedRuleIsUnavailable(t *testing.T) {
	f := newFixture(t, func(r *ruledomain.SupportRule) {
		r.Status = ruledomain.RuleStatusPaused
	})

	_, err := f.svc.Reserve(context.Background(), f.request("user-1"))
	assert.ErrorIs(t, err, domain.ErrSponsorshipUnavailable)
}

func TestListExpiredReservations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stale, err := f.svc.Reserve(ctx, f.request("user-1"))
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	captured, err := f.svc.Reserve(ctx, f.request("user-2"))
	require.NoError(t, err)
	_, err = f.svc.Capture(ctx, captured.ID)
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	_, err = f.svc.Reserve(ctx, f.request("user-3"))
	require.NoError(t, err)

	expired, err := f.svc.ListExpiredReservations(ctx, 30*time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	f.clock.Advance(time.Second)
	all, err := f.svc.ListExpiredReservations(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
