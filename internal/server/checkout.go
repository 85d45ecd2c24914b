package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/sponsorship/internal/checkout/domain"
)

type enrollRequest struct {
	ProgramID string           `json:"program_id"`
	UserID    string           `json:"user_id"`
	CreatorID string           `json:"creator_id"`
	ScopeID   string           `json:"scope_id"`
	Currency  string           `json:"currency"`
	BasePrice *decimal.Decimal `json:"base_price"`
}

func (s *Server) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BasePrice == nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	basePrice, err := minorUnits(req.BasePrice)
	if err != nil {
		AbortWithError(c, newValidationError("base_price", "invalid_base_price", "base_price must be a non-negative integer"))
		return
	}

	result, err := s.checkoutSvc.Join(c.Request.Context(), checkoutdomain.JoinRequest{
		ProgramID: req.ProgramID,
		UserID:    req.UserID,
		CreatorID: req.CreatorID,
		ScopeID:   req.ScopeID,
		Currency:  req.Currency,
		BasePrice: basePrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type recordTransactionRequest struct {
	AllocationID string           `json:"allocation_id"`
	ProgramID    string           `json:"program_id"`
	UserID       string           `json:"user_id"`
	CreatorID    string           `json:"creator_id"`
	Currency     string           `json:"currency"`
	BasePrice    *decimal.Decimal `json:"base_price"`
}

// RecordTransaction completes a join: captures the allocation when one is given,
// then records the split. Retries return the stored transaction.
func (s *Server) RecordTransaction(c *gin.Context) {
	var req recordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BasePrice == nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	allocationID, err := parseOptionalSnowflakeID(req.AllocationID)
	if err != nil {
		AbortWithError(c, newValidationError("allocation_id", "invalid_allocation_id", "invalid allocation_id"))
		return
	}
	basePrice, err := minorUnits(req.BasePrice)
	if err != nil {
		AbortWithError(c, newValidationError("base_price", "invalid_base_price", "base_price must be a non-negative integer"))
		return
	}

	record, err := s.checkoutSvc.Complete(c.Request.Context(), checkoutdomain.CompleteRequest{
		AllocationID: allocationID,
		ProgramID:    req.ProgramID,
		UserID:       req.UserID,
		CreatorID:    req.CreatorID,
		Currency:     req.Currency,
		BasePrice:    basePrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	record, err := s.transactionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}
