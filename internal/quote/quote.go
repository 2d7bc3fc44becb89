// Package quote produces and verifies signed, time-boxed price conversions
// gating escrow deposits: fiat amount in, settlement-asset amount out, signed
// with the sponsor key so the settlement contract can hold the quote issuer
// to the published rate.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/ethsign"
	"github.com/tesseralabs/tessera-api/internal/logger"
)

// MaxSlippageBps is the slippage tolerance stamped on every quote
const MaxSlippageBps = 50

// ErrInvalidAmount rejects non-positive fiat amounts
var ErrInvalidAmount = errors.New("INVALID_AMOUNT")

// RateProvider supplies the settlement-asset exchange rate for a fiat
// currency, expressed as settlement units per fiat major unit.
type RateProvider interface {
	Rate(ctx context.Context, fiatCurrency, settlementAsset string) (*big.Rat, error)
}

// Quote is an immutable signed conversion. Expiry is deliberately NOT part
// of verification; callers compare ValidUntil against their own clock at the
// point of use.
type Quote struct {
	ScopeID          string        `json:"scope_id"`
	FiatAmountMinor  int64         `json:"fiat_amount_minor"`
	FiatCurrency     string        `json:"fiat_currency"`
	SettlementAsset  string        `json:"settlement_asset"`
	SettlementAmount *big.Int      `json:"settlement_amount"`
	Rate             string        `json:"rate"`
	MaxSlippageBps   int           `json:"max_slippage_bps"`
	ValidUntil       uint64        `json:"valid_until"`
	Signature        hexutil.Bytes `json:"signature"`
}

// Service signs quotes with the sponsor key and verifies them by recovery
type Service struct {
	key      *ethsign.Signer
	rates    RateProvider
	decimals map[string]uint8
	clock    func() time.Time
	logger   *zap.Logger
}

// DefaultAssets maps the supported settlement assets to their decimal
// precision.
func DefaultAssets() map[string]uint8 {
	return map[string]uint8{
		"native": 18,
		"USDC":   6,
		"USDT":   6,
	}
}

// NewService creates a quote service for the given asset registry
func NewService(key *ethsign.Signer, rates RateProvider, assets map[string]uint8) *Service {
	return &Service{
		key:      key,
		rates:    rates,
		decimals: assets,
		clock:    time.Now,
		logger:   logger.Log,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Generate converts fiatAmount (major units, e.g. 100.00 for $100) into the
// settlement asset at the current rate and signs the result. The conversion
// runs at full precision and is floored to the asset's base units.
func (s *Service) Generate(ctx context.Context, scopeID string, fiatAmount float64, fiatCurrency, settlementAsset string, validity time.Duration) (*Quote, error) {
	if fiatAmount <= 0 {
		return nil, fmt.Errorf("%w: fiat amount must be positive, got %v", ErrInvalidAmount, fiatAmount)
	}
	decimals, ok := s.decimals[settlementAsset]
	if !ok {
		return nil, fmt.Errorf("unsupported settlement asset %q", settlementAsset)
	}

	rate, err := s.rates.Rate(ctx, fiatCurrency, settlementAsset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}

	if math.IsNaN(fiatAmount) || math.IsInf(fiatAmount, 0) {
		return nil, fmt.Errorf("%w: fiat amount is not finite", ErrInvalidAmount)
	}
	minorUnits := int64(math.Round(fiatAmount * 100))

	// settlement base units = fiat major units * rate * 10^decimals
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	settlement := new(big.Rat).SetInt64(minorUnits)
	settlement.Quo(settlement, big.NewRat(100, 1))
	settlement.Mul(settlement, rate)
	settlement.Mul(settlement, new(big.Rat).SetInt(scale))
	settlementAmount := ratToInt(settlement)

	validUntil := uint64(s.clock().Add(validity).Unix())
	digest := Digest(scopeID, minorUnits, fiatCurrency, settlementAmount, validUntil)
	sig, err := s.key.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign quote: %w", err)
	}

	s.logger.Info("Quote issued",
		zap.String("scope", scopeID),
		zap.Int64("fiat_minor", minorUnits),
		zap.String("currency", fiatCurrency),
		zap.String("settlement_amount", settlementAmount.String()),
		zap.Uint64("valid_until", validUntil),
	)

	return &Quote{
		ScopeID:          scopeID,
		FiatAmountMinor:  minorUnits,
		FiatCurrency:     fiatCurrency,
		SettlementAsset:  settlementAsset,
		SettlementAmount: settlementAmount,
		Rate:             rate.FloatString(8),
		MaxSlippageBps:   MaxSlippageBps,
		ValidUntil:       validUntil,
		Signature:        sig,
	}, nil
}

// Verify recomputes the quote digest from its own fields and checks the
// recovered signer against the sponsor key. Expiry is a caller concern and
// is not checked here.
func (s *Service) Verify(q *Quote) bool {
	if q == nil || q.SettlementAmount == nil {
		return false
	}
	digest := Digest(q.ScopeID, q.FiatAmountMinor, q.FiatCurrency, q.SettlementAmount, q.ValidUntil)
	recovered, err := ethsign.Recover(digest, q.Signature)
	if err != nil {
		return false
	}
	return recovered == s.key.Address()
}

// Digest computes the signed quote hash over (scopeID, fiat minor units,
// currency, settlement amount, validUntil). Fixed field order; the scope is
// hashed first so arbitrary-length identifiers cannot smear into the
// neighbouring fields.
func Digest(scopeID string, fiatMinor int64, fiatCurrency string, settlementAmount *big.Int, validUntil uint64) common.Hash {
	packed := make([]byte, 0, 32+8+len(fiatCurrency)+32+6)
	packed = append(packed, crypto.Keccak256([]byte(scopeID))...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetInt64(fiatMinor).Bytes(), 8)...)
	packed = append(packed, []byte(fiatCurrency)...)
	packed = append(packed, common.LeftPadBytes(settlementAmount.Bytes(), 32)...)
	packed = append(packed, ethsign.PackValidityWindow(validUntil, 0)[:6]...)
	return crypto.Keccak256Hash(packed)
}

func ratToInt(r *big.Rat) *big.Int {
	return new(big.Int).Quo(r.Num(), r.Denom())
}
