package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/sponsorship/internal/eligibility/domain"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Rules ruledomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	rules ruledomain.Repository
}

func New(p Params) domain.Resolver {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("eligibility.service"),
		rules: p.Rules,
	}
}

func (s *Service) FindEligibleRule(ctx context.Context, scopeID, currency string, now time.Time) (*ruledomain.SupportRule, error) {
	scopeID = strings.TrimSpace(scopeID)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if scopeID == "" || len(currency) != 3 {
		return nil, domain.ErrInvalidInput
	}
	now = now.UTC()

	expired, err := s.rules.ExpireEnded(ctx, s.db, scopeID, currency, now)
	if err != nil {
		return nil, err
	}
	if expired > 0 {
		s.log.Info("support rules expired",
			zap.String("scope_id", scopeID),
			zap.String("currency", currency),
			zap.Int64("count", expired),
		)
	}

	candidates, err := s.rules.FindActiveForScope(ctx, s.db, scopeID, currency, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
	return candidates[0], nil
}

// better orders by amount desc, then start asc with open starts first, then id asc.
func better(a, b *ruledomain.SupportRule) bool {
	if a.AmountPerParticipant != b.AmountPerParticipant {
		return a.AmountPerParticipant > b.AmountPerParticipant
	}
	switch {
	case a.StartAt == nil && b.StartAt != nil:
		return true
	case a.StartAt != nil && b.StartAt == nil:
		return false
	case a.StartAt != nil && b.StartAt != nil && !a.StartAt.Equal(*b.StartAt):
		return a.StartAt.Before(*b.StartAt)
	}
	return a.ID < b.ID
}
