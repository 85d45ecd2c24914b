package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsorship/internal/budget/domain"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Rules ruledomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	rules ruledomain.Repository
}

func New(p Params) domain.Ledger {
	return &Service{
		log:   p.Log.Named("budget.ledger"),
		genID: p.GenID,
		rules: p.Rules,
	}
}

// commitSQL takes budget and a seat in one statement. The row predicate is the
// capacity check, so two writers on the same rule serialize on the row lock and
// the loser sees the updated counters. status is assigned first so every dialect
// evaluates the CASE against the pre-update counters.
const commitSQL = `
UPDATE support_rules SET
	status = CASE
		WHEN budget_spent + ? >= budget_total
		  OR (max_participants IS NOT NULL AND seats_taken + 1 >= max_participants)
		THEN ? ELSE status END,
	budget_spent = budget_spent + ?,
	seats_taken = seats_taken + 1,
	version = version + 1,
	updated_at = ?
WHERE id = ?
  AND status = ?
  AND ? <= amount_per_participant
  AND budget_spent + ? <= budget_total
  AND (max_participants IS NULL OR seats_taken < max_participants)
  AND (start_at IS NULL OR start_at <= ?)
  AND (end_at IS NULL OR end_at > ?)`

// releaseSQL gives back one commit. An exhausted rule becomes active again;
// paused and expired rules keep their status.
const releaseSQL = `
UPDATE support_rules SET
	status = CASE WHEN status = ? THEN ? ELSE status END,
	budget_spent = budget_spent - ?,
	seats_taken = seats_taken - 1,
	version = version + 1,
	updated_at = ?
WHERE id = ? AND budget_spent >= ? AND seats_taken >= 1`

func (s *Service) TryCommit(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, amount int64, now time.Time) (domain.CommitToken, error) {
	if ruleID == 0 || amount <= 0 {
		return 0, domain.ErrInvalidInput
	}
	now = now.UTC()

	result := db.WithContext(ctx).Exec(commitSQL,
		amount, ruledomain.RuleStatusExhausted,
		amount,
		now,
		ruleID,
		ruledomain.RuleStatusActive,
		amount,
		amount,
		now,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, s.explainRejection(ctx, db, ruleID, amount)
	}

	commit := domain.BudgetCommit{
		ID:        s.genID.Generate(),
		RuleID:    ruleID,
		Amount:    amount,
		Status:    domain.CommitStatusCommitted,
		CreatedAt: now,
	}
	if err := db.WithContext(ctx).Create(&commit).Error; err != nil {
		return 0, err
	}

	s.log.Debug("budget committed",
		zap.String("rule_id", ruleID.String()),
		zap.String("commit_id", commit.ID.String()),
		zap.Int64("amount", amount),
	)
	return commit.ID, nil
}

// explainRejection runs only after the conditional update matched nothing.
func (s *Service) explainRejection(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, amount int64) error {
	rule, err := s.rules.FindByID(ctx, db, ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return domain.ErrRuleNotFound
	}
	if amount > rule.AmountPerParticipant {
		return domain.ErrInvalidInput
	}
	return domain.ErrBudgetExhausted
}

func (s *Service) Release(ctx context.Context, db *gorm.DB, token domain.CommitToken, now time.Time) error {
	if token == 0 {
		return domain.ErrInvalidInput
	}
	now = now.UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var commit domain.BudgetCommit
		if err := tx.Where("id = ?", token).Limit(1).Find(&commit).Error; err != nil {
			return err
		}
		if commit.ID == 0 {
			return domain.ErrInvalidInput
		}

		flipped := tx.Exec(
			`UPDATE budget_commits SET status = ?, released_at = ? WHERE id = ? AND status = ?`,
			domain.CommitStatusReleased,
			now,
			token,
			domain.CommitStatusCommitted,
		)
		if flipped.Error != nil {
			return flipped.Error
		}
		if flipped.RowsAffected == 0 {
			// Already released.
			return nil
		}

		restored := tx.Exec(releaseSQL,
			ruledomain.RuleStatusExhausted, ruledomain.RuleStatusActive,
			commit.Amount,
			now,
			commit.RuleID,
			commit.Amount,
		)
		if restored.Error != nil {
			return restored.Error
		}
		if restored.RowsAffected == 0 {
			s.log.Error("budget counters out of sync with commit",
				zap.String("rule_id", commit.RuleID.String()),
				zap.String("commit_id", commit.ID.String()),
			)
			return domain.ErrRuleNotFound
		}

		s.log.Debug("budget released",
			zap.String("rule_id", commit.RuleID.String()),
			zap.String("commit_id", commit.ID.String()),
			zap.Int64("amount", commit.Amount),
		)
		return nil
	})
}

func (s *Service) ReadRemaining(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (domain.Remaining, error) {
	if ruleID == 0 {
		return domain.Remaining{}, domain.ErrInvalidInput
	}
	rule, err := s.rules.FindByID(ctx, db, ruleID)
	if err != nil {
		return domain.Remaining{}, err
	}
	if rule == nil {
		return domain.Remaining{}, domain.ErrRuleNotFound
	}
	return domain.Remaining{
		RuleID:          rule.ID,
		BudgetRemaining: rule.BudgetRemaining(),
		SeatsRemaining:  rule.SeatsRemaining(),
	}, nil
}
