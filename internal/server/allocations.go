package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
)

type reserveRequest struct {
	RuleID    string         `json:"rule_id"`
	SponsorID string         `json:"sponsor_id"`
	ProgramID string         `json:"program_id"`
	UserID    string         `json:"user_id"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) ReserveAllocation(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ruleID, err := parseSnowflakeID(req.RuleID)
	if err != nil {
		AbortWithError(c, newValidationError("rule_id", "invalid_rule_id", "invalid rule_id"))
		return
	}

	allocation, err := s.allocationSvc.Reserve(c.Request.Context(), allocationdomain.ReserveRequest{
		RuleID:    ruleID,
		SponsorID: req.SponsorID,
		ProgramID: req.ProgramID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": allocation})
}

func (s *Server) GetAllocation(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	allocation, err := s.allocationSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": allocation})
}

func (s *Server) CaptureAllocation(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	allocation, err := s.allocationSvc.Capture(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": allocation})
}

func (s *Server) ReleaseAllocation(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	allocation, err := s.allocationSvc.Release(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": allocation})
}

func (s *Server) ListExpiredReservations(c *gin.Context) {
	olderThan, err := parseOptionalDuration(c.Query("older_than"), s.policy.Get().ReservationTTL)
	if err != nil {
		AbortWithError(c, newValidationError("older_than", "invalid_older_than", "older_than must be a duration like 30m"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"), 100)
	if err != nil || limit <= 0 || limit > 1000 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be between 1 and 1000"))
		return
	}

	allocations, err := s.allocationSvc.ListExpiredReservations(c.Request.Context(), olderThan, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": allocations})
}
