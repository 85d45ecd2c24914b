package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	allocationrepository "github.com/smallbiznis/sponsorship/internal/allocation/repository"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/config"
	ledgerdomain "github.com/smallbiznis/sponsorship/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/sponsorship/internal/ledger/service"
	"github.com/smallbiznis/sponsorship/internal/testutil"
	"github.com/smallbiznis/sponsorship/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	svc    domain.Service
	ledger ledgerdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node})
	policy := config.NewStaticPricingPolicy(config.PricingPolicy{
		CreatorShare:   decimal.RequireFromString("0.8"),
		ReservationTTL: 30 * time.Minute,
	})

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Allocations: allocationrepository.Provide(),
		Ledger:      ledger,
	})
	return &fixture{db: db, node: node, clock: clk, svc: svc, ledger: ledger}
}

func (f *fixture) seedAllocation(t *testing.T, status allocationdomain.Status, amount int64) *allocationdomain.Allocation {
	t.Helper()
	now := f.clock.Now()
	allocation := &allocationdomain.Allocation{
		ID:         f.node.Generate(),
		RuleID:     f.node.Generate(),
		SponsorID:  "sponsor-1",
		ProgramID:  "program-1",
		UserID:     "user-1",
		Amount:     amount,
		Currency:   "USD",
		Status:     status,
		CommitID:   f.node.Generate(),
		ReservedAt: now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.db.Create(allocation).Error)
	return allocation
}

func request(allocationID *snowflake.ID, basePrice int64) domain.RecordRequest {
	return domain.RecordRequest{
		AllocationID: allocationID,
		BasePrice:    basePrice,
		Currency:     "usd",
		ProgramID:    "program-1",
		UserID:       "user-1",
		CreatorID:    "creator-1",
	}
}

func TestRecordSponsoredTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	allocation := f.seedAllocation(t, allocationdomain.StatusCaptured, 3000)

	record, err := f.svc.RecordCompletedTransaction(ctx, request(&allocation.ID, 10000))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), record.BasePrice)
	assert.Equal(t, int64(3000), record.SponsorAmount)
	assert.Equal(t, int64(7000), record.UserPays)
	assert.Equal(t, int64(8000), record.CreatorEarning)
	assert.Equal(t, int64(2000), record.PlatformFee)
	assert.Equal(t, "USD", record.Currency)
	assert.True(t, record.Sponsored())

	lines, err := f.ledger.ListEntryLines(ctx, ledgerdomain.SourceTypeTransaction, record.ID)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	require.NoError(t, ledgerdomain.ValidateBalanced(lines))

	byAccount := map[ledgerdomain.LedgerAccountCode]int64{}
	for _, line := range lines {
		byAccount[line.AccountCode] = line.Amount
	}
	assert.Equal(t, int64(7000), byAccount[ledgerdomain.AccountCodeMemberPayments])
	assert.Equal(t, int64(3000), byAccount[ledgerdomain.AccountCodeSponsorContributions])
	assert.Equal(t, int64(8000), byAccount[ledgerdomain.AccountCodeCreatorPayable])
	assert.Equal(t, int64(2000), byAccount[ledgerdomain.AccountCodePlatformRevenue])
}

func TestRecordIsIdempotentPerAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	allocation := f.seedAllocation(t, allocationdomain.StatusCaptured, 5000)

	first, err := f.svc.RecordCompletedTransaction(ctx, request(&allocation.ID, 5000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.UserPays)

	second, err := f.svc.RecordCompletedTransaction(ctx, request(&allocation.ID, 5000))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&domain.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, f.db.Model(&ledgerdomain.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordRequiresCapturedAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reserved := f.seedAllocation(t, allocationdomain.StatusReserved, 3000)
	_, err := f.svc.RecordCompletedTransaction(ctx, request(&reserved.ID, 10000))
	assert.ErrorIs(t, err, domain.ErrAllocationNotCaptured)

	missing := f.node.Generate()
	_, err = f.svc.RecordCompletedTransaction(ctx, request(&missing, 10000))
	assert.ErrorIs(t, err, domain.ErrAllocationNotCaptured)

	var count int64
	require.NoError(t, f.db.Model(&domain.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRecordRejectsMismatchedAllocation(t *testing.T) {
	f := newFixture(t)
	allocation := f.seedAllocation(t, allocationdomain.StatusCaptured, 3000)

	req := request(&allocation.ID, 10000)
	req.UserID = "user-2"
	_, err := f.svc.RecordCompletedTransaction(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req = request(&allocation.ID, 10000)
	req.Currency = "EUR"
	_, err = f.svc.RecordCompletedTransaction(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordRetryRejectsOtherParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	allocation := f.seedAllocation(t, allocationdomain.StatusCaptured, 3000)

	first, err := f.svc.RecordCompletedTransaction(ctx, request(&allocation.ID, 10000))
	require.NoError(t, err)

	req := request(&allocation.ID, 1)
	req.UserID = "user-2"
	req.ProgramID = "program-9"
	record, err := f.svc.RecordCompletedTransaction(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, record)

	req = request(&allocation.ID, 10000)
	req.Currency = "EUR"
	_, err = f.svc.RecordCompletedTransaction(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Normalization still applies on replay.
	req = request(&allocation.ID, 10000)
	req.UserID = " user-1 "
	again, err := f.svc.RecordCompletedTransaction(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(10000), again.BasePrice)
}

func TestRecordUnsponsoredTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.RecordCompletedTransaction(ctx, request(nil, 9999))
	require.NoError(t, err)
	assert.Nil(t, record.AllocationID)
	assert.Equal(t, int64(9999), record.UserPays)
	assert.Equal(t, int64(7999), record.CreatorEarning)
	assert.Equal(t, int64(2000), record.PlatformFee)
	assert.False(t, record.Sponsored())

	lines, err := f.ledger.ListEntryLines(ctx, ledgerdomain.SourceTypeTransaction, record.ID)
	require.NoError(t, err)
	// The zero sponsor line is not posted.
	assert.Len(t, lines, 3)

	stored, err := f.svc.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatorShare.Equal(decimal.RequireFromString("0.8")))
}

func TestRecordFreeTransactionPostsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.RecordCompletedTransaction(ctx, request(nil, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.CreatorEarning)

	var count int64
	require.NoError(t, f.db.Model(&ledgerdomain.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRecordValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := request(nil, -1)
	_, err := f.svc.RecordCompletedTransaction(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req = request(nil, 100)
	req.CreatorID = " "
	_, err = f.svc.RecordCompletedTransaction(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
