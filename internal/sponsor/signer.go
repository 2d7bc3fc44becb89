package sponsor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/ethsign"
	"github.com/tesseralabs/tessera-api/internal/logger"
)

// Variant selects which paymaster contract the authorization is issued for
type Variant string

const (
	// VariantNative is the paymaster that fronts fees in the native asset
	VariantNative Variant = "native"
	// VariantToken is the paymaster that settles fees in an ERC-20 token
	VariantToken Variant = "token"
)

// ClockSkewTolerance is subtracted from the issuance time to produce
// validAfter, absorbing clock drift between the signing service and the
// chain's block timestamps.
const ClockSkewTolerance = 30 * time.Second

// Authorization is the signed sponsorship tuple handed back to the caller.
// It is ephemeral: nothing in it is persisted, and it cannot be revoked,
// only allowed to expire.
type Authorization struct {
	Sender     common.Address `json:"sender"`
	Paymaster  common.Address `json:"paymaster"`
	ValidAfter uint64         `json:"valid_after"`
	ValidUntil uint64         `json:"valid_until"`
	ChainID    *big.Int       `json:"chain_id"`
	EntryPoint common.Address `json:"entry_point"`
	Signature  hexutil.Bytes  `json:"signature"`

	// Blob is the packed {validUntil, validAfter, signature} section for
	// embedding in the operation's paymasterAndData envelope.
	Blob hexutil.Bytes `json:"blob"`
}

// Signer implements the off-chain half of the sponsorship protocol: it
// reserves quota through the policy store, builds the authorization digest,
// and signs it with the sponsor key.
type Signer struct {
	policies   *PolicyStore
	key        *ethsign.Signer
	chainID    *big.Int
	entryPoint common.Address
	paymasters map[Variant]common.Address
	clock      func() time.Time
	logger     *zap.Logger
}

// NewSigner wires the signing protocol to its policy store and chain
// parameters. paymasters must contain an address for every variant the
// service is expected to issue for.
func NewSigner(policies *PolicyStore, key *ethsign.Signer, chainID *big.Int, entryPoint common.Address, paymasters map[Variant]common.Address) *Signer {
	return &Signer{
		policies:   policies,
		key:        key,
		chainID:    chainID,
		entryPoint: entryPoint,
		paymasters: paymasters,
		clock:      time.Now,
		logger:     logger.Log,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Signer) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SignerAddress returns the sponsor's signing address, the value the
// paymaster contract must hold as its registered verifying signer.
func (s *Signer) SignerAddress() common.Address {
	return s.key.Address()
}

// Sign issues a sponsorship authorization for sender within scope. The
// policy store's CheckAndReserve runs first; its error, if any, is returned
// unchanged and no signature is produced. On success the only state mutated
// is what CheckAndReserve already consumed.
func (s *Signer) Sign(ctx context.Context, sender common.Address, scope string, variant Variant, callSelector string, validity time.Duration) (*Authorization, error) {
	paymaster, ok := s.paymasters[variant]
	if !ok {
		return nil, fmt.Errorf("unknown paymaster variant %q", variant)
	}
	if validity <= 0 {
		return nil, fmt.Errorf("validity must be positive, got %s", validity)
	}

	if err := s.policies.CheckAndReserve(scope, sender, callSelector); err != nil {
		return nil, err
	}

	now := s.clock()
	validAfter := uint64(now.Add(-ClockSkewTolerance).Unix())
	validUntil := uint64(now.Add(validity).Unix())

	digest := ethsign.AuthorizationDigest(sender, validUntil, validAfter, paymaster, s.chainID, s.entryPoint)
	sig, err := s.key.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	blob := append(ethsign.PackValidityWindow(validUntil, validAfter), sig...)

	s.logger.Info("Sponsorship authorization issued",
		zap.String("sender", sender.Hex()),
		zap.String("scope", scope),
		zap.String("variant", string(variant)),
		zap.Uint64("valid_until", validUntil),
	)

	return &Authorization{
		Sender:     sender,
		Paymaster:  paymaster,
		ValidAfter: validAfter,
		ValidUntil: validUntil,
		ChainID:    new(big.Int).Set(s.chainID),
		EntryPoint: s.entryPoint,
		Signature:  sig,
		Blob:       blob,
	}, nil
}
