package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/sponsorship/internal/audit/domain"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"github.com/smallbiznis/sponsorship/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	audit auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("supportrule.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRuleRequest) (*domain.SupportRule, error) {
	sponsorID := strings.TrimSpace(req.SponsorID)
	if sponsorID == "" {
		return nil, domain.ErrInvalidSponsor
	}
	scopeID := strings.TrimSpace(req.ScopeID)
	if scopeID == "" {
		return nil, domain.ErrInvalidScope
	}
	scopeType := req.ScopeType
	if scopeType == "" {
		scopeType = domain.ScopeTypeProgram
	}
	if scopeType != domain.ScopeTypeProgram && scopeType != domain.ScopeTypeCategory {
		return nil, domain.ErrInvalidScope
	}
	currency := NormalizeCurrency(req.Currency)
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	if req.AmountPerParticipant <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if req.BudgetTotal < req.AmountPerParticipant {
		return nil, domain.ErrInvalidBudget
	}
	if req.MaxParticipants != nil && *req.MaxParticipants <= 0 {
		return nil, domain.ErrInvalidMaxSeats
	}
	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		return nil, domain.ErrInvalidWindow
	}

	now := s.clock.Now()
	rule := &domain.SupportRule{
		ID:                   s.genID.Generate(),
		SponsorID:            sponsorID,
		ScopeType:            scopeType,
		ScopeID:              scopeID,
		Currency:             currency,
		AmountPerParticipant: req.AmountPerParticipant,
		BudgetTotal:          req.BudgetTotal,
		MaxParticipants:      req.MaxParticipants,
		Status:               domain.RuleStatusActive,
		StartAt:              utcPtr(req.StartAt),
		EndAt:                utcPtr(req.EndAt),
		Metadata:             datatypes.JSONMap(req.Metadata),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if rule.Metadata == nil {
		rule.Metadata = datatypes.JSONMap{}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, rule); err != nil {
			return err
		}
		return s.recordAudit(ctx, tx, auditdomain.ActionRuleCreated, rule.ID, map[string]any{
			"sponsor_id":   rule.SponsorID,
			"scope_id":     rule.ScopeID,
			"currency":     rule.Currency,
			"budget_total": rule.BudgetTotal,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("support rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("sponsor_id", rule.SponsorID),
		zap.String("scope_id", rule.ScopeID),
		zap.Int64("budget_total", rule.BudgetTotal),
	)
	return rule, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.SupportRule, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	rule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, domain.ErrNotFound
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRulesRequest) (domain.ListRulesResponse, error) {
	var afterID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListRulesResponse{}, err
		}
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListRulesResponse{}, pagination.ErrInvalidPageToken
		}
	}

	limit := req.Limit()
	rules, err := s.repo.List(ctx, s.db, domain.ListFilter{
		SponsorID: strings.TrimSpace(req.SponsorID),
		ScopeID:   strings.TrimSpace(req.ScopeID),
		Status:    domain.RuleStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	}, afterID, limit+1)
	if err != nil {
		return domain.ListRulesResponse{}, err
	}

	page, info, err := pagination.BuildCursorPageInfo(rules, limit, func(r *domain.SupportRule) string {
		return r.ID.String()
	})
	if err != nil {
		return domain.ListRulesResponse{}, err
	}
	if page == nil {
		page = []*domain.SupportRule{}
	}
	return domain.ListRulesResponse{PageInfo: info, Rules: page}, nil
}

func (s *Service) Pause(ctx context.Context, id snowflake.ID) (*domain.SupportRule, error) {
	return s.transition(ctx, id, []domain.RuleStatus{domain.RuleStatusActive, domain.RuleStatusExhausted}, domain.RuleStatusPaused, auditdomain.ActionRulePaused)
}

func (s *Service) Resume(ctx context.Context, id snowflake.ID) (*domain.SupportRule, error) {
	return s.transition(ctx, id, []domain.RuleStatus{domain.RuleStatusPaused}, domain.RuleStatusActive, auditdomain.ActionRuleResumed)
}

// transition is a no-op when the rule already has status to.
func (s *Service) transition(ctx context.Context, id snowflake.ID, from []domain.RuleStatus, to domain.RuleStatus, action string) (*domain.SupportRule, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}

	var rule *domain.SupportRule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.repo.UpdateStatus(ctx, tx, id, from, to, s.clock.Now())
		if err != nil {
			return err
		}
		rule, err = s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if rule == nil {
			return domain.ErrNotFound
		}
		if !changed {
			if rule.Status != to {
				return domain.ErrInvalidStatus
			}
			return nil
		}
		return s.recordAudit(ctx, tx, action, rule.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) recordAudit(ctx context.Context, tx *gorm.DB, action string, ruleID snowflake.ID, metadata map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx, auditdomain.Entry{
		Action:     action,
		TargetType: auditdomain.TargetTypeRule,
		TargetID:   ruleID.String(),
		Metadata:   metadata,
	})
}

// NormalizeCurrency upper-cases a three-letter ISO code and returns "" for anything else.
func NormalizeCurrency(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return ""
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return code
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
