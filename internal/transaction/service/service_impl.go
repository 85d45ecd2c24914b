package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/config"
	"github.com/smallbiznis/sponsorship/internal/events"
	ledgerdomain "github.com/smallbiznis/sponsorship/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/sponsorship/internal/observability/metrics"
	"github.com/smallbiznis/sponsorship/internal/pricing"
	"github.com/smallbiznis/sponsorship/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PricingPolicyHolder
	Allocations allocationdomain.Repository
	Ledger      ledgerdomain.Service
	Events      *events.Dispatcher  `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PricingPolicyHolder
	allocations allocationdomain.Repository
	ledger      ledgerdomain.Service
	events      *events.Dispatcher
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("transaction.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		allocations: p.Allocations,
		ledger:      p.Ledger,
		events:      p.Events,
		metrics:     p.Metrics,
	}
}

func (s *Service) RecordCompletedTransaction(ctx context.Context, req domain.RecordRequest) (*domain.Transaction, error) {
	req.ProgramID = strings.TrimSpace(req.ProgramID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.CreatorID = strings.TrimSpace(req.CreatorID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.ProgramID == "" || req.UserID == "" || req.CreatorID == "" {
		return nil, domain.ErrInvalidInput
	}
	if req.BasePrice < 0 || len(req.Currency) != 3 {
		return nil, domain.ErrInvalidInput
	}
	if req.AllocationID != nil && *req.AllocationID == 0 {
		return nil, domain.ErrInvalidInput
	}

	if req.AllocationID != nil {
		existing, err := s.findByAllocation(ctx, s.db, *req.AllocationID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if !sameParticipant(existing, req) {
				return nil, domain.ErrInvalidInput
			}
			return existing, nil
		}
	}

	creatorShare := s.policy.Get().CreatorShare
	now := s.clock.Now()
	var (
		record   *domain.Transaction
		inserted bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sponsorAmount int64
		if req.AllocationID != nil {
			allocation, err := s.allocations.FindByID(ctx, tx, *req.AllocationID)
			if err != nil {
				return err
			}
			if allocation == nil || allocation.Status != allocationdomain.StatusCaptured {
				return domain.ErrAllocationNotCaptured
			}
			if allocation.ProgramID != req.ProgramID || allocation.UserID != req.UserID || allocation.Currency != req.Currency {
				return domain.ErrInvalidInput
			}
			sponsorAmount = allocation.Amount
		}

		breakdown, err := pricing.Compute(req.BasePrice, sponsorAmount, creatorShare)
		if err != nil {
			return domain.ErrInvalidInput
		}

		candidate := &domain.Transaction{
			ID:             s.genID.Generate(),
			AllocationID:   req.AllocationID,
			ProgramID:      req.ProgramID,
			UserID:         req.UserID,
			CreatorID:      req.CreatorID,
			Currency:       req.Currency,
			BasePrice:      breakdown.BasePrice,
			SponsorAmount:  breakdown.SponsorAmount,
			UserPays:       breakdown.UserPays,
			CreatorEarning: breakdown.CreatorEarning,
			PlatformFee:    breakdown.PlatformFee,
			CreatorShare:   creatorShare,
			RecordedAt:     now,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(candidate)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if req.AllocationID == nil {
				return domain.ErrNotFound
			}
			// A concurrent retry for the same allocation won.
			existing, err := s.findByAllocation(ctx, tx, *req.AllocationID)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrNotFound
			}
			if !sameParticipant(existing, req) {
				return domain.ErrInvalidInput
			}
			record = existing
			return nil
		}
		record, inserted = candidate, true

		if breakdown.IsFree {
			return nil
		}
		_, err = s.ledger.CreateEntry(ctx, tx, ledgerdomain.CreateEntryRequest{
			SourceType: ledgerdomain.SourceTypeTransaction,
			SourceID:   candidate.ID,
			Currency:   candidate.Currency,
			OccurredAt: now,
			Lines:      postingLines(breakdown),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if inserted {
		s.metrics.RecordTransaction(ctx, record.Sponsored())
		s.events.Emit(events.NewEvent(events.EventTransactionRecorded, now, record))
		s.log.Info("transaction recorded",
			zap.String("transaction_id", record.ID.String()),
			zap.String("program_id", record.ProgramID),
			zap.Int64("base_price", record.BasePrice),
			zap.Int64("sponsor_amount", record.SponsorAmount),
		)
	}
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	if id == 0 {
		return nil, domain.ErrInvalidInput
	}
	var record domain.Transaction
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (s *Service) findByAllocation(ctx context.Context, db *gorm.DB, allocationID snowflake.ID) (*domain.Transaction, error) {
	var record domain.Transaction
	if err := db.WithContext(ctx).Where("allocation_id = ?", allocationID).Limit(1).Find(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// postingLines funds the base price from member and sponsor and splits it between
// creator and platform.
func postingLines(b pricing.Breakdown) []ledgerdomain.LedgerEntryLine {
	return []ledgerdomain.LedgerEntryLine{
		{AccountCode: ledgerdomain.AccountCodeMemberPayments, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: b.UserPays},
		{AccountCode: ledgerdomain.AccountCodeSponsorContributions, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: b.SponsorAmount},
		{AccountCode: ledgerdomain.AccountCodeCreatorPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: b.CreatorEarning},
		{AccountCode: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: b.PlatformFee},
	}
}

// sameParticipant reports whether a stored transaction belongs to the caller
// replaying req. The request must already be normalized.
func sameParticipant(existing *domain.Transaction, req domain.RecordRequest) bool {
	return existing.ProgramID == req.ProgramID &&
		existing.UserID == req.UserID &&
		existing.Currency == req.Currency
}
