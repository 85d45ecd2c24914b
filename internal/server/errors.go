package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	auditdomain "github.com/smallbiznis/sponsorship/internal/audit/domain"
	budgetdomain "github.com/smallbiznis/sponsorship/internal/budget/domain"
	eligibilitydomain "github.com/smallbiznis/sponsorship/internal/eligibility/domain"
	"github.com/smallbiznis/sponsorship/internal/pricing"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	transactiondomain "github.com/smallbiznis/sponsorship/internal/transaction/domain"
	"github.com/smallbiznis/sponsorship/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_input",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_input",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, allocationdomain.ErrSponsorshipUnavailable):
		return http.StatusConflict, errorPayload{
			Type:    "sponsorship_unavailable",
			Message: "sponsorship unavailable",
		}
	case errors.Is(err, allocationdomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: "invalid transition",
		}
	case errors.Is(err, transactiondomain.ErrAllocationNotCaptured):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "allocation_not_captured",
			Message: "allocation not captured",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pricing.ErrInvalidInput),
		errors.Is(err, allocationdomain.ErrInvalidInput),
		errors.Is(err, transactiondomain.ErrInvalidInput),
		errors.Is(err, eligibilitydomain.ErrInvalidInput),
		errors.Is(err, budgetdomain.ErrInvalidInput),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidTarget),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isRuleValidationError(err):
		return true
	default:
		return false
	}
}

func isRuleValidationError(err error) bool {
	switch {
	case errors.Is(err, ruledomain.ErrInvalidID),
		errors.Is(err, ruledomain.ErrInvalidSponsor),
		errors.Is(err, ruledomain.ErrInvalidScope),
		errors.Is(err, ruledomain.ErrInvalidCurrency),
		errors.Is(err, ruledomain.ErrInvalidAmount),
		errors.Is(err, ruledomain.ErrInvalidBudget),
		errors.Is(err, ruledomain.ErrInvalidMaxSeats),
		errors.Is(err, ruledomain.ErrInvalidWindow),
		errors.Is(err, ruledomain.ErrInvalidStatus):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ruledomain.ErrNotFound),
		errors.Is(err, budgetdomain.ErrRuleNotFound),
		errors.Is(err, allocationdomain.ErrNotFound),
		errors.Is(err, transactiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog yields the error_type field of the request log line.
func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}
