package handlers

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/audit"
	"github.com/tesseralabs/tessera-api/internal/escrow"
	"github.com/tesseralabs/tessera-api/internal/logger"
	"github.com/tesseralabs/tessera-api/internal/middleware"
	"github.com/tesseralabs/tessera-api/internal/paymaster"
	"github.com/tesseralabs/tessera-api/internal/quote"
	"github.com/tesseralabs/tessera-api/internal/sponsor"
)

// CallerAddressHeader carries the caller identity. Authentication is
// performed upstream; this service consumes the already-verified identity.
const CallerAddressHeader = "X-Caller-Address"

// CommonServices holds the shared dependencies used across handlers
type CommonServices struct {
	Policies        *sponsor.PolicyStore
	Sponsor         *sponsor.Signer
	Escrow          *escrow.Service
	Quotes          *quote.Service
	Audit           *audit.Service
	NativePaymaster *paymaster.Paymaster
	TokenPaymaster  *paymaster.TokenPaymaster
}

// NewCommonServices creates a new instance of CommonServices
func NewCommonServices(policies *sponsor.PolicyStore, signer *sponsor.Signer, esc *escrow.Service, quotes *quote.Service, aud *audit.Service, native *paymaster.Paymaster, token *paymaster.TokenPaymaster) *CommonServices {
	return &CommonServices{
		Policies:        policies,
		Sponsor:         signer,
		Escrow:          esc,
		Quotes:          quotes,
		Audit:           aud,
		NativePaymaster: native,
		TokenPaymaster:  token,
	}
}

// ErrorResponse represents a standard error response. Code carries the
// machine-readable rule identifier when one applies.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the health check payload
type HealthResponse struct {
	Status string `json:"status"`
}

// sendError logs the error and sends a JSON error response
func sendError(c *gin.Context, statusCode int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("correlation_id", middleware.GetCorrelationID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	resp := ErrorResponse{Error: message}
	var policyErr *sponsor.PolicyError
	if errors.As(err, &policyErr) {
		resp.Code = string(policyErr.Code)
	}
	c.JSON(statusCode, resp)
}

// sendSuccess sends a success response with the given payload
func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// handlePolicyError maps a policy rejection onto the HTTP status that fits
// the rule that failed, keeping the exact code in the body.
func handlePolicyError(c *gin.Context, err error) {
	var policyErr *sponsor.PolicyError
	if !errors.As(err, &policyErr) {
		sendError(c, http.StatusInternalServerError, "sponsorship failed", err)
		return
	}
	status := http.StatusForbidden
	switch policyErr.Code {
	case sponsor.CodePolicyNotFound:
		status = http.StatusNotFound
	case sponsor.CodeRateLimit, sponsor.CodeHourlyLimit:
		status = http.StatusTooManyRequests
	}
	c.JSON(status, ErrorResponse{Error: policyErr.Reason, Code: string(policyErr.Code)})
}

// handleEscrowError maps custody failures onto HTTP statuses
func handleEscrowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, escrow.ErrAlreadyFunded):
		sendError(c, http.StatusConflict, escrow.ErrAlreadyFunded.Error(), err)
	case errors.Is(err, escrow.ErrInvalidState):
		sendError(c, http.StatusConflict, escrow.ErrInvalidState.Error(), err)
	case errors.Is(err, escrow.ErrNotAuthorized):
		sendError(c, http.StatusForbidden, escrow.ErrNotAuthorized.Error(), err)
	default:
		sendError(c, http.StatusBadRequest, "escrow operation failed", err)
	}
}

// callerAddress parses the caller identity header
func callerAddress(c *gin.Context) (common.Address, bool) {
	raw := c.GetHeader(CallerAddressHeader)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
