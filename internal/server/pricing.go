package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsorship/internal/pricing"
)

type quoteRequest struct {
	BasePrice     *decimal.Decimal `json:"base_price"`
	SponsorAmount *decimal.Decimal `json:"sponsor_amount"`
	CreatorShare  *decimal.Decimal `json:"creator_share"`
}

func (s *Server) Quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BasePrice == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	basePrice, err := minorUnits(req.BasePrice)
	if err != nil {
		AbortWithError(c, newValidationError("base_price", "invalid_base_price", "base_price must be a non-negative integer"))
		return
	}
	sponsorAmount, err := minorUnits(req.SponsorAmount)
	if err != nil {
		AbortWithError(c, newValidationError("sponsor_amount", "invalid_sponsor_amount", "sponsor_amount must be a non-negative integer"))
		return
	}
	share := s.policy.Get().CreatorShare
	if req.CreatorShare != nil {
		share = *req.CreatorShare
	}

	breakdown, err := pricing.Compute(basePrice, sponsorAmount, share)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": breakdown})
}
