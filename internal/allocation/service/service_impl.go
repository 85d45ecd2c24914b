package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsorship/internal/allocation/domain"
	budgetdomain "github.com/smallbiznis/sponsorship/internal/budget/domain"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/events"
	obsmetrics "github.com/smallbiznis/sponsorship/internal/observability/metrics"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	reserveOutcomeReserved    = "reserved"
	reserveOutcomeExisting    = "existing"
	reserveOutcomeUnavailable = "unavailable"
)

// errLostInsertRace rolls back a reserve whose insert hit another writer's active row.
var errLostInsertRace = errors.New("allocation insert lost race")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Ledger  budgetdomain.Ledger
	Rules   ruledomain.Repository
	Events  *events.Dispatcher  `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	ledger  budgetdomain.Ledger
	rules   ruledomain.Repository
	events  *events.Dispatcher
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("allocation.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		ledger:  p.Ledger,
		rules:   p.Rules,
		events:  p.Events,
		metrics: p.Metrics,
	}
}

func (s *Service) Reserve(ctx context.Context, req domain.ReserveRequest) (*domain.Allocation, error) {
	req.SponsorID = strings.TrimSpace(req.SponsorID)
	req.ProgramID = strings.TrimSpace(req.ProgramID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.RuleID == 0 || req.SponsorID == "" || req.ProgramID == "" || req.UserID == "" {
		return nil, domain.ErrInvalidInput
	}
	if req.Amount <= 0 || len(req.Currency) != 3 {
		return nil, domain.ErrInvalidInput
	}

	now := s.clock.Now()
	var (
		allocation *domain.Allocation
		existing   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindActive(ctx, tx, req.RuleID, req.UserID, req.ProgramID)
		if err != nil {
			return err
		}
		if found != nil {
			allocation, existing = found, true
			return nil
		}

		rule, err := s.rules.FindByID(ctx, tx, req.RuleID)
		if err != nil {
			return err
		}
		if rule == nil || rule.SponsorID != req.SponsorID || rule.Currency != req.Currency {
			return domain.ErrInvalidInput
		}

		token, err := s.ledger.TryCommit(ctx, tx, req.RuleID, req.Amount, now)
		if err != nil {
			return translateLedgerErr(err)
		}

		candidate := &domain.Allocation{
			ID:         s.genID.Generate(),
			RuleID:     req.RuleID,
			SponsorID:  req.SponsorID,
			ProgramID:  req.ProgramID,
			UserID:     req.UserID,
			Amount:     req.Amount,
			Currency:   req.Currency,
			Status:     domain.StatusReserved,
			CommitID:   token,
			Metadata:   datatypes.JSONMap(req.Metadata),
			ReservedAt: now,
			UpdatedAt:  now,
		}
		inserted, err := s.repo.InsertIfAbsent(ctx, tx, candidate)
		if err != nil {
			return err
		}
		if !inserted {
			return errLostInsertRace
		}
		allocation = candidate
		return nil
	})

	switch {
	case errors.Is(err, errLostInsertRace):
		winner, findErr := s.repo.FindActive(ctx, s.db, req.RuleID, req.UserID, req.ProgramID)
		if findErr != nil {
			return nil, findErr
		}
		if winner == nil {
			s.metrics.RecordReservation(ctx, reserveOutcomeUnavailable)
			return nil, domain.ErrSponsorshipUnavailable
		}
		s.metrics.RecordReservation(ctx, reserveOutcomeExisting)
		return winner, nil
	case errors.Is(err, domain.ErrSponsorshipUnavailable):
		s.metrics.RecordReservation(ctx, reserveOutcomeUnavailable)
		return nil, err
	case err != nil:
		return nil, err
	}

	if existing {
		s.metrics.RecordReservation(ctx, reserveOutcomeExisting)
		return allocation, nil
	}

	s.metrics.RecordReservation(ctx, reserveOutcomeReserved)
	s.metrics.RecordBudgetCommit(ctx, "commit", allocation.Amount)
	s.log.Info("allocation reserved",
		zap.String("allocation_id", allocation.ID.String()),
		zap.String("rule_id", allocation.RuleID.String()),
		zap.String("program_id", allocation.ProgramID),
		zap.String("user_id", allocation.UserID),
		zap.Int64("amount", allocation.Amount),
	)
	return allocation, nil
}

func (s *Service) Capture(ctx context.Context, id snowflake.ID) (*domain.Allocation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidInput
	}

	now := s.clock.Now()
	var allocation *domain.Allocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.MarkCaptured(ctx, tx, id, now)
		if err != nil {
			return err
		}
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !moved {
			return domain.ErrInvalidTransition
		}
		allocation = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(ctx, string(domain.StatusReserved), string(domain.StatusCaptured))
	s.events.Emit(events.NewEvent(events.EventAllocationCaptured, now, allocation))
	s.log.Info("allocation captured", zap.String("allocation_id", allocation.ID.String()))
	return allocation, nil
}

func (s *Service) Release(ctx context.Context, id snowflake.ID) (*domain.Allocation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidInput
	}

	now := s.clock.Now()
	var allocation *domain.Allocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if err := domain.Transition(current.Status, domain.StatusReleased); err != nil {
			return err
		}

		moved, err := s.repo.MarkReleased(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition
		}
		if err := s.ledger.Release(ctx, tx, current.CommitID, now); err != nil {
			return err
		}

		current.Status = domain.StatusReleased
		current.ReleasedAt = &now
		current.UpdatedAt = now
		allocation = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(ctx, string(domain.StatusReserved), string(domain.StatusReleased))
	s.metrics.RecordBudgetCommit(ctx, "release", allocation.Amount)
	s.events.Emit(events.NewEvent(events.EventAllocationReleased, now, allocation))
	s.log.Info("allocation released", zap.String("allocation_id", allocation.ID.String()))
	return allocation, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Allocation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidInput
	}
	allocation, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if allocation == nil {
		return nil, domain.ErrNotFound
	}
	return allocation, nil
}

func (s *Service) ListExpiredReservations(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Allocation, error) {
	if olderThan < 0 {
		return nil, domain.ErrInvalidInput
	}
	cutoff := s.clock.Now().Add(-olderThan)
	return s.repo.ListReservedBefore(ctx, s.db, cutoff, limit)
}

func translateLedgerErr(err error) error {
	switch {
	case errors.Is(err, budgetdomain.ErrBudgetExhausted):
		return domain.ErrSponsorshipUnavailable
	case errors.Is(err, budgetdomain.ErrInvalidInput), errors.Is(err, budgetdomain.ErrRuleNotFound):
		return domain.ErrInvalidInput
	default:
		return err
	}
}
