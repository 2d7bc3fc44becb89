// Package paymaster mirrors the on-chain validation counterpart of the
// sponsorship protocol. It is specified bit-exactly against the issuance side
// so the two cannot drift: the digest is rebuilt from on-chain-visible fields
// through the same ethsign encoding the signer used.
package paymaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/ethsign"
	"github.com/tesseralabs/tessera-api/internal/logger"
	"github.com/tesseralabs/tessera-api/internal/store"
)

// PostOpMode reports how the sponsored operation concluded
type PostOpMode uint8

const (
	OpSucceeded PostOpMode = iota
	OpReverted
	PostOpReverted
)

// UserOperation carries the on-chain-visible fields the validator needs.
// PaymasterAndData is paymaster address (20 bytes) followed by the packed
// validity window (12 bytes) and the 65-byte sponsor signature.
type UserOperation struct {
	Sender           common.Address
	Nonce            *big.Int
	CallData         []byte
	PaymasterAndData []byte
}

// ValidationData is the structured validation result. Signature mismatch is
// reported through SigFailed rather than an error so the execution
// environment can reject the operation without reverting the batch.
type ValidationData struct {
	SigFailed  bool
	ValidUntil uint64
	ValidAfter uint64
}

// Pack encodes the result the way the entry point consumes it:
// authorizer flag in the low 160 bits, validUntil at bit 160, validAfter at
// bit 208.
func (v ValidationData) Pack() *big.Int {
	packed := new(big.Int)
	if v.SigFailed {
		packed.SetUint64(1)
	}
	until := new(big.Int).Lsh(new(big.Int).SetUint64(v.ValidUntil), 160)
	after := new(big.Int).Lsh(new(big.Int).SetUint64(v.ValidAfter), 208)
	packed.Or(packed, until)
	return packed.Or(packed, after)
}

// SenderAccount accumulates post-execution accounting per sender: what the
// sponsor has fronted so far and how many operations it covered.
type SenderAccount struct {
	TotalFeeCost *big.Int
	OpCount      uint64
}

// Paymaster validates sponsorship signatures and accounts for fronted fees
// in the native asset.
type Paymaster struct {
	address         common.Address
	entryPoint      common.Address
	chainID         *big.Int
	verifyingSigner common.Address
	accounts        store.Store[common.Address, SenderAccount]
	logger          *zap.Logger
}

// New creates a native-asset paymaster bound to its own contract address,
// the entry point it trusts, and the sponsor's registered signing address.
func New(address, entryPoint common.Address, chainID *big.Int, verifyingSigner common.Address) *Paymaster {
	return &Paymaster{
		address:         address,
		entryPoint:      entryPoint,
		chainID:         chainID,
		verifyingSigner: verifyingSigner,
		accounts:        store.NewMemoryStore[common.Address, SenderAccount](),
		logger:          logger.Log,
	}
}

// Address returns the paymaster's own contract address
func (p *Paymaster) Address() common.Address {
	return p.address
}

// ValidatePaymasterUserOp recomputes the authorization digest from the
// operation's fields, recovers the signer, and returns the packed validation
// result plus an opaque context for PostOp. maxCost is the worst-case fee the
// entry point may draw from the paymaster's deposit.
//
// A recovered-signer mismatch is NOT an error: it returns a result with the
// signature-failed flag set so the environment can drop the operation
// cleanly. Errors indicate a malformed operation only.
func (p *Paymaster) ValidatePaymasterUserOp(ctx context.Context, op UserOperation, maxCost *big.Int) ([]byte, ValidationData, error) {
	validUntil, validAfter, sig, err := p.parseAuthorization(op)
	if err != nil {
		return nil, ValidationData{}, err
	}

	digest := ethsign.AuthorizationDigest(op.Sender, validUntil, validAfter, p.address, p.chainID, p.entryPoint)
	recovered, err := ethsign.Recover(digest, sig)
	if err != nil || recovered != p.verifyingSigner {
		p.logger.Warn("Sponsorship signature rejected",
			zap.String("sender", op.Sender.Hex()),
			zap.String("recovered", recovered.Hex()),
		)
		return nil, ValidationData{SigFailed: true, ValidUntil: validUntil, ValidAfter: validAfter}, nil
	}

	// The window is returned rather than enforced: the entry point rejects
	// expired operations itself even when it trusts the signature.
	return p.postOpContext(op.Sender), ValidationData{ValidUntil: validUntil, ValidAfter: validAfter}, nil
}

// PostOp records the actual fee cost of the executed operation against the
// sender's running totals. Pure accounting; it never blocks the operation.
func (p *Paymaster) PostOp(ctx context.Context, mode PostOpMode, opCtx []byte, actualFeeCost *big.Int) error {
	sender, err := senderFromContext(opCtx)
	if err != nil {
		return err
	}
	p.recordUsage(sender, actualFeeCost)
	return nil
}

// Account returns the accumulated accounting for a sender
func (p *Paymaster) Account(sender common.Address) SenderAccount {
	acct, ok := p.accounts.Get(sender)
	if !ok {
		return SenderAccount{TotalFeeCost: new(big.Int)}
	}
	return acct
}

func (p *Paymaster) recordUsage(sender common.Address, feeCost *big.Int) {
	_ = p.accounts.Mutate(sender, func(acct SenderAccount, ok bool) (SenderAccount, error) {
		if !ok {
			acct = SenderAccount{TotalFeeCost: new(big.Int)}
		}
		acct.TotalFeeCost = new(big.Int).Add(acct.TotalFeeCost, feeCost)
		acct.OpCount++
		return acct, nil
	})
}

func (p *Paymaster) parseAuthorization(op UserOperation) (validUntil, validAfter uint64, sig []byte, err error) {
	if len(op.PaymasterAndData) < common.AddressLength {
		return 0, 0, nil, fmt.Errorf("paymasterAndData too short: %d bytes", len(op.PaymasterAndData))
	}
	target := common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
	if target != p.address {
		return 0, 0, nil, fmt.Errorf("operation targets paymaster %s, not %s", target.Hex(), p.address.Hex())
	}
	return ethsign.UnpackValidityWindow(op.PaymasterAndData[common.AddressLength:])
}

func (p *Paymaster) postOpContext(sender common.Address) []byte {
	return sender.Bytes()
}

func senderFromContext(opCtx []byte) (common.Address, error) {
	if len(opCtx) < common.AddressLength {
		return common.Address{}, fmt.Errorf("postOp context too short: %d bytes", len(opCtx))
	}
	return common.BytesToAddress(opCtx[:common.AddressLength]), nil
}
