package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tesseralabs/tessera-api/internal/quote"
)

// QuoteHandler exposes quote generation and verification
type QuoteHandler struct {
	common *CommonServices
}

// NewQuoteHandler creates a new QuoteHandler
func NewQuoteHandler(common *CommonServices) *QuoteHandler {
	return &QuoteHandler{common: common}
}

// GenerateQuoteRequest asks for a signed conversion
type GenerateQuoteRequest struct {
	ScopeID         string  `json:"scope_id" binding:"required"`
	FiatAmount      float64 `json:"fiat_amount"`
	FiatCurrency    string  `json:"fiat_currency" binding:"required"`
	SettlementAsset string  `json:"settlement_asset" binding:"required"`
	ValiditySeconds int64   `json:"validity_seconds"`
}

// Generate issues a signed, time-boxed price quote
func (h *QuoteHandler) Generate(c *gin.Context) {
	var req GenerateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	validity := time.Duration(req.ValiditySeconds) * time.Second
	if validity <= 0 {
		validity = 5 * time.Minute
	}

	q, err := h.common.Quotes.Generate(c.Request.Context(), req.ScopeID, req.FiatAmount, req.FiatCurrency, req.SettlementAsset, validity)
	if err != nil {
		if errors.Is(err, quote.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_AMOUNT"})
			return
		}
		sendError(c, http.StatusBadRequest, "Failed to generate quote", err)
		return
	}

	sendSuccess(c, http.StatusOK, q)
}

// VerifyQuoteResponse reports the verification outcome
type VerifyQuoteResponse struct {
	Valid bool `json:"valid"`
}

// Verify checks a quote's signature. Expiry is not checked here; callers
// compare valid_until against their own clock at the point of use.
func (h *QuoteHandler) Verify(c *gin.Context) {
	var q quote.Quote
	if err := c.ShouldBindJSON(&q); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sendSuccess(c, http.StatusOK, VerifyQuoteResponse{Valid: h.common.Quotes.Verify(&q)})
}
