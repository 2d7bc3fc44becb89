package handlers

import (
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/tesseralabs/tessera-api/internal/ethsign"
	"github.com/tesseralabs/tessera-api/internal/paymaster"
	"github.com/tesseralabs/tessera-api/internal/sponsor"
)

// SponsorHandler exposes policy registration and authorization signing
type SponsorHandler struct {
	common *CommonServices
}

// NewSponsorHandler creates a new SponsorHandler
func NewSponsorHandler(common *CommonServices) *SponsorHandler {
	return &SponsorHandler{common: common}
}

// RegisterPolicyRequest is the policy registration payload
type RegisterPolicyRequest struct {
	AuctionID        string   `json:"auction_id" binding:"required"`
	Beneficiary      string   `json:"beneficiary" binding:"required"`
	AllowedSelectors []string `json:"allowed_selectors"`
	AllowedTargets   []string `json:"allowed_targets"`
	MaxOpsPerScope   int      `json:"max_ops_per_scope"`
	ExpirySeconds    int64    `json:"expiry_seconds" binding:"required"`
}

// RegisterPolicy stores or overwrites a sponsorship policy
func (h *SponsorHandler) RegisterPolicy(c *gin.Context) {
	var req RegisterPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !common.IsHexAddress(req.Beneficiary) {
		sendError(c, http.StatusBadRequest, "Invalid beneficiary address", nil)
		return
	}

	targets := make([]common.Address, 0, len(req.AllowedTargets))
	for _, t := range req.AllowedTargets {
		if !common.IsHexAddress(t) {
			sendError(c, http.StatusBadRequest, "Invalid target address", nil)
			return
		}
		targets = append(targets, common.HexToAddress(t))
	}

	policy := sponsor.Policy{
		Beneficiary:      common.HexToAddress(req.Beneficiary),
		Scope:            req.AuctionID,
		AllowedSelectors: req.AllowedSelectors,
		AllowedTargets:   targets,
		MaxOpsPerScope:   req.MaxOpsPerScope,
		ExpiresAt:        time.Now().Add(time.Duration(req.ExpirySeconds) * time.Second),
	}
	if err := h.common.Policies.RegisterPolicy(policy); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid policy", err)
		return
	}

	sendSuccess(c, http.StatusCreated, SuccessResponse{Message: "policy registered"})
}

// SignRequest asks for a sponsorship authorization
type SignRequest struct {
	Sender           string `json:"sender" binding:"required"`
	AuctionID        string `json:"auction_id" binding:"required"`
	PaymasterVariant string `json:"paymaster_variant"`
	CallSelector     string `json:"call_selector"`
	ValiditySeconds  int64  `json:"validity_seconds"`
}

// Sign issues a signed sponsorship authorization for the sender
func (h *SponsorHandler) Sign(c *gin.Context) {
	var req SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !common.IsHexAddress(req.Sender) {
		sendError(c, http.StatusBadRequest, "Invalid sender address", nil)
		return
	}

	variant := sponsor.Variant(req.PaymasterVariant)
	if variant == "" {
		variant = sponsor.VariantNative
	}
	validity := time.Duration(req.ValiditySeconds) * time.Second
	if validity <= 0 {
		validity = 5 * time.Minute
	}

	auth, err := h.common.Sponsor.Sign(c.Request.Context(), common.HexToAddress(req.Sender), req.AuctionID, variant, req.CallSelector, validity)
	if err != nil {
		handlePolicyError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, auth)
}

// FailureExemplar is one canned failure case produced by DemoFailures
type FailureExemplar struct {
	Scenario string `json:"scenario"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`

	// For the bad-signer case: the packed on-chain validation result with
	// the signature-failed flag set.
	ValidationData string `json:"validation_data,omitempty"`
}

// DemoFailures exercises each rejection path against throwaway state and
// returns the results. Integration demos and cross-implementation tests use
// this to compare failure envelopes without crafting each scenario by hand.
func (h *SponsorHandler) DemoFailures(c *gin.Context) {
	ctx := c.Request.Context()
	beneficiary := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	exemplars := make([]FailureExemplar, 0, 4)

	// No policy registered at all.
	demo := sponsor.NewPolicyStore(sponsor.DefaultWindow, sponsor.DefaultWindowCap)
	err := demo.CheckAndReserve("auction-demo", beneficiary, "")
	exemplars = append(exemplars, exemplarFromError("no_policy", err))

	// Policy expired before the request.
	demo = sponsor.NewPolicyStore(sponsor.DefaultWindow, sponsor.DefaultWindowCap)
	_ = demo.RegisterPolicy(sponsor.Policy{
		Beneficiary:    beneficiary,
		Scope:          "auction-demo",
		MaxOpsPerScope: 1,
		ExpiresAt:      time.Now().Add(-time.Minute),
	})
	err = demo.CheckAndReserve("auction-demo", beneficiary, "")
	exemplars = append(exemplars, exemplarFromError("expired", err))

	// Selector outside the allowlist.
	demo = sponsor.NewPolicyStore(sponsor.DefaultWindow, sponsor.DefaultWindowCap)
	_ = demo.RegisterPolicy(sponsor.Policy{
		Beneficiary:      beneficiary,
		Scope:            "auction-demo",
		AllowedSelectors: []string{"0xa9059cbb"},
		MaxOpsPerScope:   1,
		ExpiresAt:        time.Now().Add(time.Hour),
	})
	err = demo.CheckAndReserve("auction-demo", beneficiary, "0xdeadbeef")
	exemplars = append(exemplars, exemplarFromError("disallowed_selector", err))

	// Authorization signed by the wrong key: the paymaster returns a packed
	// signature-failed result rather than an error.
	rogue, err := ethsign.NewSigner("59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	if err == nil {
		now := uint64(time.Now().Unix())
		digest := ethsign.AuthorizationDigest(beneficiary, now+300, now-30, h.common.NativePaymaster.Address(), big.NewInt(1), common.Address{})
		sig, sigErr := rogue.SignDigest(digest)
		if sigErr == nil {
			op := paymaster.UserOperation{
				Sender:           beneficiary,
				PaymasterAndData: append(append(h.common.NativePaymaster.Address().Bytes(), ethsign.PackValidityWindow(now+300, now-30)...), sig...),
			}
			_, data, _ := h.common.NativePaymaster.ValidatePaymasterUserOp(ctx, op, big.NewInt(1))
			exemplars = append(exemplars, FailureExemplar{
				Scenario:       "bad_signer",
				ValidationData: data.Pack().String(),
			})
		}
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"object": "list",
		"data":   exemplars,
	})
}

func exemplarFromError(scenario string, err error) FailureExemplar {
	ex := FailureExemplar{Scenario: scenario}
	if policyErr, ok := err.(*sponsor.PolicyError); ok {
		ex.Code = string(policyErr.Code)
		ex.Error = policyErr.Reason
	} else if err != nil {
		ex.Error = err.Error()
	}
	return ex
}
