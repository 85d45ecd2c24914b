package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/sponsorship/internal/audit/domain"
	auditrepository "github.com/smallbiznis/sponsorship/internal/audit/repository"
	auditservice "github.com/smallbiznis/sponsorship/internal/audit/service"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"github.com/smallbiznis/sponsorship/internal/supportrule/repository"
	"github.com/smallbiznis/sponsorship/internal/testutil"
	"github.com/smallbiznis/sponsorship/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, auditdomain.Service) {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: repository.Provide(), Audit: audit})
	return svc, audit
}

func validRequest() domain.CreateRuleRequest {
	return domain.CreateRuleRequest{
		SponsorID:            "sponsor-1",
		ScopeID:              "program-1",
		Currency:             " huf ",
		AmountPerParticipant: 2000,
		BudgetTotal:          10000,
	}
}

func TestCreateNormalizes(t *testing.T) {
	svc, _ := newTestService(t)

	rule, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "HUF", rule.Currency)
	assert.Equal(t, domain.ScopeTypeProgram, rule.ScopeType)
	assert.Equal(t, domain.RuleStatusActive, rule.Status)
	assert.Zero(t, rule.BudgetSpent)
	assert.Zero(t, rule.SeatsTaken)

	got, err := svc.GetByID(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, got.ID)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	zero := int64(0)

	cases := []struct {
		name   string
		mutate func(*domain.CreateRuleRequest)
		err    error
	}{
		{"missing sponsor", func(r *domain.CreateRuleRequest) { r.SponsorID = " " }, domain.ErrInvalidSponsor},
		{"missing scope", func(r *domain.CreateRuleRequest) { r.ScopeID = "" }, domain.ErrInvalidScope},
		{"unknown scope type", func(r *domain.CreateRuleRequest) { r.ScopeType = "region" }, domain.ErrInvalidScope},
		{"bad currency", func(r *domain.CreateRuleRequest) { r.Currency = "US1" }, domain.ErrInvalidCurrency},
		{"zero amount", func(r *domain.CreateRuleRequest) { r.AmountPerParticipant = 0 }, domain.ErrInvalidAmount},
		{"budget below one seat", func(r *domain.CreateRuleRequest) { r.BudgetTotal = 1999 }, domain.ErrInvalidBudget},
		{"zero seats", func(r *domain.CreateRuleRequest) { r.MaxParticipants = &zero }, domain.ErrInvalidMaxSeats},
		{"inverted window", func(r *domain.CreateRuleRequest) { r.StartAt, r.EndAt = &start, &end }, domain.ErrInvalidWindow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestGetByIDMissing(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetByID(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestPauseResume(t *testing.T) {
	svc, audit := newTestService(t)
	ctx := context.Background()
	rule, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	paused, err := svc.Pause(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleStatusPaused, paused.Status)
	assert.Greater(t, paused.Version, rule.Version)

	// Already paused is not an error.
	_, err = svc.Pause(ctx, rule.ID)
	require.NoError(t, err)

	resumed, err := svc.Resume(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleStatusActive, resumed.Status)

	_, err = svc.Pause(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	logs, err := audit.List(ctx, auditdomain.ListAuditLogRequest{
		TargetType: auditdomain.TargetTypeRule,
		TargetID:   rule.ID.String(),
	})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 3)
	assert.Equal(t, auditdomain.ActionRuleResumed, logs.AuditLogs[0].Action)
	assert.Equal(t, auditdomain.ActionRulePaused, logs.AuditLogs[1].Action)
	assert.Equal(t, auditdomain.ActionRuleCreated, logs.AuditLogs[2].Action)
	assert.Equal(t, "sponsor-1", logs.AuditLogs[2].Metadata["sponsor_id"])
}

func TestResumeActiveIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	rule, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	// Active is already the target status.
	got, err := svc.Resume(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleStatusActive, got.Status)
}

func TestListPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, validRequest())
		require.NoError(t, err)
	}
	other := validRequest()
	other.SponsorID = "sponsor-2"
	_, err := svc.Create(ctx, other)
	require.NoError(t, err)

	first, err := svc.List(ctx, domain.ListRulesRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		SponsorID:  "sponsor-1",
	})
	require.NoError(t, err)
	require.Len(t, first.Rules, 2)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, domain.ListRulesRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		SponsorID:  "sponsor-1",
	})
	require.NoError(t, err)
	require.Len(t, second.Rules, 1)
	assert.False(t, second.HasMore)
	assert.Greater(t, int64(second.Rules[0].ID), int64(first.Rules[1].ID))

	_, err = svc.List(ctx, domain.ListRulesRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
