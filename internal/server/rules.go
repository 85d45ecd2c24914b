package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"github.com/smallbiznis/sponsorship/pkg/db/pagination"
)

type createRuleRequest struct {
	SponsorID            string         `json:"sponsor_id"`
	ScopeType            string         `json:"scope_type"`
	ScopeID              string         `json:"scope_id"`
	Currency             string         `json:"currency"`
	AmountPerParticipant int64          `json:"amount_per_participant"`
	BudgetTotal          int64          `json:"budget_total"`
	MaxParticipants      *int64         `json:"max_participants"`
	StartAt              *string        `json:"start_at"`
	EndAt                *string        `json:"end_at"`
	Metadata             map[string]any `json:"metadata"`
}

func (s *Server) CreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, err := parseOptionalTime(req.StartAt)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "start_at must be RFC3339"))
		return
	}
	endAt, err := parseOptionalTime(req.EndAt)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "end_at must be RFC3339"))
		return
	}

	rule, err := s.ruleSvc.Create(c.Request.Context(), ruledomain.CreateRuleRequest{
		SponsorID:            strings.TrimSpace(req.SponsorID),
		ScopeType:            ruledomain.ScopeType(strings.TrimSpace(req.ScopeType)),
		ScopeID:              strings.TrimSpace(req.ScopeID),
		Currency:             req.Currency,
		AmountPerParticipant: req.AmountPerParticipant,
		BudgetTotal:          req.BudgetTotal,
		MaxParticipants:      req.MaxParticipants,
		StartAt:              startAt,
		EndAt:                endAt,
		Metadata:             req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) ListRules(c *gin.Context) {
	var query struct {
		pagination.Pagination
		SponsorID string `form:"sponsor_id"`
		ScopeID   string `form:"scope_id"`
		Status    string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.List(c.Request.Context(), ruledomain.ListRulesRequest{
		Pagination: query.Pagination,
		SponsorID:  strings.TrimSpace(query.SponsorID),
		ScopeID:    strings.TrimSpace(query.ScopeID),
		Status:     strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Rules, "page_info": resp.PageInfo})
}

func (s *Server) GetRule(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	rule, err := s.ruleSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) PauseRule(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	rule, err := s.ruleSvc.Pause(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ResumeRule(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	rule, err := s.ruleSvc.Resume(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) GetRuleRemaining(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	remaining, err := s.ledger.ReadRemaining(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": remaining})
}

// FindEligibleRule answers 200 with a null rule when nothing sponsors the scope.
func (s *Server) FindEligibleRule(c *gin.Context) {
	var query struct {
		ScopeID  string `form:"scope_id"`
		Currency string `form:"currency"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.resolver.FindEligibleRule(c.Request.Context(), query.ScopeID, query.Currency, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}
