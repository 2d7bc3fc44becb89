package handlers

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// EscrowHandler exposes the custody state machine
type EscrowHandler struct {
	common *CommonServices
}

// NewEscrowHandler creates a new EscrowHandler
func NewEscrowHandler(common *CommonServices) *EscrowHandler {
	return &EscrowHandler{common: common}
}

// DepositRequest funds an escrow. The buyer is the authenticated caller.
type DepositRequest struct {
	ScopeID string `json:"scope_id" binding:"required"`
	Seller  string `json:"seller" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Asset   string `json:"asset"`
}

// Deposit funds the escrow for a scope
func (h *EscrowHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	buyer, ok := callerAddress(c)
	if !ok {
		sendError(c, http.StatusBadRequest, "Missing or invalid caller address", nil)
		return
	}
	if !common.IsHexAddress(req.Seller) {
		sendError(c, http.StatusBadRequest, "Invalid seller address", nil)
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		sendError(c, http.StatusBadRequest, "Invalid amount", nil)
		return
	}

	err := h.common.Escrow.Deposit(c.Request.Context(), req.ScopeID, buyer, common.HexToAddress(req.Seller), amount, req.Asset)
	if err != nil {
		handleEscrowError(c, err)
		return
	}

	record, err := h.common.Escrow.Info(req.ScopeID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to read escrow record", err)
		return
	}
	sendSuccess(c, http.StatusCreated, record)
}

// Release pays the custodied amount to the seller. Bridge only.
func (h *EscrowHandler) Release(c *gin.Context) {
	h.settle(c, func(scopeID string, caller common.Address) error {
		return h.common.Escrow.Release(c.Request.Context(), scopeID, caller)
	})
}

// Refund returns the custodied amount to the buyer. Bridge only.
func (h *EscrowHandler) Refund(c *gin.Context) {
	h.settle(c, func(scopeID string, caller common.Address) error {
		return h.common.Escrow.Refund(c.Request.Context(), scopeID, caller)
	})
}

// Dispute freezes a funded escrow. Buyer or seller only.
func (h *EscrowHandler) Dispute(c *gin.Context) {
	h.settle(c, func(scopeID string, caller common.Address) error {
		return h.common.Escrow.Dispute(c.Request.Context(), scopeID, caller)
	})
}

// ResolveRequest decides a disputed escrow
type ResolveRequest struct {
	ReleaseToSeller bool `json:"release_to_seller"`
}

// Resolve settles a disputed escrow. Arbitrator or bridge only.
func (h *EscrowHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.settle(c, func(scopeID string, caller common.Address) error {
		return h.common.Escrow.Resolve(c.Request.Context(), scopeID, caller, req.ReleaseToSeller)
	})
}

// Info returns the current escrow record for a scope
func (h *EscrowHandler) Info(c *gin.Context) {
	record, err := h.common.Escrow.Info(c.Param("scope_id"))
	if err != nil {
		handleEscrowError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, record)
}

func (h *EscrowHandler) settle(c *gin.Context, transition func(scopeID string, caller common.Address) error) {
	caller, ok := callerAddress(c)
	if !ok {
		sendError(c, http.StatusBadRequest, "Missing or invalid caller address", nil)
		return
	}
	scopeID := c.Param("scope_id")
	if err := transition(scopeID, caller); err != nil {
		handleEscrowError(c, err)
		return
	}

	record, err := h.common.Escrow.Info(scopeID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to read escrow record", err)
		return
	}
	sendSuccess(c, http.StatusOK, record)
}
