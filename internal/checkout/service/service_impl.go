package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	"github.com/smallbiznis/sponsorship/internal/checkout/domain"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/config"
	eligibilitydomain "github.com/smallbiznis/sponsorship/internal/eligibility/domain"
	"github.com/smallbiznis/sponsorship/internal/pricing"
	transactiondomain "github.com/smallbiznis/sponsorship/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Policy       *config.PricingPolicyHolder
	Resolver     eligibilitydomain.Resolver
	Allocations  allocationdomain.Service
	Transactions transactiondomain.Service
}

type Service struct {
	log          *zap.Logger
	clock        clock.Clock
	policy       *config.PricingPolicyHolder
	resolver     eligibilitydomain.Resolver
	allocations  allocationdomain.Service
	transactions transactiondomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("checkout.service"),
		clock:        p.Clock,
		policy:       p.Policy,
		resolver:     p.Resolver,
		allocations:  p.Allocations,
		transactions: p.Transactions,
	}
}

func (s *Service) Join(ctx context.Context, req domain.JoinRequest) (*domain.JoinResult, error) {
	req.ProgramID = strings.TrimSpace(req.ProgramID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.ScopeID = strings.TrimSpace(req.ScopeID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.ProgramID == "" || req.UserID == "" || len(req.Currency) != 3 || req.BasePrice < 0 {
		return nil, allocationdomain.ErrInvalidInput
	}
	if req.ScopeID == "" {
		req.ScopeID = req.ProgramID
	}
	share := s.policy.Get().CreatorShare

	if req.BasePrice == 0 {
		return s.unsponsored(req.BasePrice, share)
	}

	rule, err := s.resolver.FindEligibleRule(ctx, req.ScopeID, req.Currency, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return s.unsponsored(req.BasePrice, share)
	}

	amount := rule.AmountPerParticipant
	if req.BasePrice < amount {
		amount = req.BasePrice
	}
	allocation, err := s.allocations.Reserve(ctx, allocationdomain.ReserveRequest{
		RuleID:    rule.ID,
		SponsorID: rule.SponsorID,
		ProgramID: req.ProgramID,
		UserID:    req.UserID,
		Amount:    amount,
		Currency:  req.Currency,
		Metadata:  map[string]any{"creator_id": req.CreatorID, "scope_id": req.ScopeID},
	})
	if errors.Is(err, allocationdomain.ErrSponsorshipUnavailable) {
		s.log.Info("sponsorship unavailable, pricing unsponsored",
			zap.String("rule_id", rule.ID.String()),
			zap.String("program_id", req.ProgramID),
			zap.String("user_id", req.UserID),
		)
		return s.unsponsored(req.BasePrice, share)
	}
	if err != nil {
		return nil, err
	}

	breakdown, err := pricing.Compute(req.BasePrice, allocation.Amount, share)
	if err != nil {
		return nil, allocationdomain.ErrInvalidInput
	}
	return &domain.JoinResult{Allocation: allocation, Pricing: breakdown}, nil
}

func (s *Service) Complete(ctx context.Context, req domain.CompleteRequest) (*transactiondomain.Transaction, error) {
	if req.AllocationID != nil {
		if _, err := s.allocations.Capture(ctx, *req.AllocationID); err != nil {
			if !errors.Is(err, allocationdomain.ErrInvalidTransition) {
				return nil, err
			}
			// A retried completion finds the allocation already captured.
			current, getErr := s.allocations.GetByID(ctx, *req.AllocationID)
			if getErr != nil {
				return nil, getErr
			}
			if current.Status != allocationdomain.StatusCaptured {
				return nil, err
			}
		}
	}

	return s.transactions.RecordCompletedTransaction(ctx, transactiondomain.RecordRequest{
		AllocationID: req.AllocationID,
		BasePrice:    req.BasePrice,
		Currency:     req.Currency,
		ProgramID:    req.ProgramID,
		UserID:       req.UserID,
		CreatorID:    req.CreatorID,
	})
}

func (s *Service) Abandon(ctx context.Context, allocationID snowflake.ID) (*allocationdomain.Allocation, error) {
	allocation, err := s.allocations.Release(ctx, allocationID)
	if errors.Is(err, allocationdomain.ErrInvalidTransition) {
		return s.allocations.GetByID(ctx, allocationID)
	}
	return allocation, err
}

func (s *Service) unsponsored(basePrice int64, share decimal.Decimal) (*domain.JoinResult, error) {
	breakdown, err := pricing.Compute(basePrice, 0, share)
	if err != nil {
		return nil, allocationdomain.ErrInvalidInput
	}
	return &domain.JoinResult{Pricing: breakdown}, nil
}
