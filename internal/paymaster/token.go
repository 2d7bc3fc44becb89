package paymaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// TokenLedger is the slice of the ERC-20 surface the token paymaster needs.
// TransferFrom pulls the fee-equivalent token amount from the sender using
// the allowance granted to the paymaster.
type TokenLedger interface {
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// TokenPaymaster settles sponsored fees in an ERC-20 token instead of the
// native asset. Validation checks the sender has pre-approved at least the
// worst-case token-equivalent cost; PostOp pulls the actual cost.
type TokenPaymaster struct {
	*Paymaster
	token           TokenLedger
	pricePerFeeUnit *big.Int
	scalingFactor   *big.Int
}

// NewToken creates a token paymaster. pricePerFeeUnit is the token price of
// one fee unit, scaled by 10^tokenDecimals; the conversion is
// tokenCost = feeCost * pricePerFeeUnit / 10^tokenDecimals.
func NewToken(address, entryPoint common.Address, chainID *big.Int, verifyingSigner common.Address, token TokenLedger, pricePerFeeUnit *big.Int, tokenDecimals uint8) *TokenPaymaster {
	return &TokenPaymaster{
		Paymaster:       New(address, entryPoint, chainID, verifyingSigner),
		token:           token,
		pricePerFeeUnit: pricePerFeeUnit,
		scalingFactor:   new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokenDecimals)), nil),
	}
}

// TokenCost converts a fee cost into its token equivalent
func (p *TokenPaymaster) TokenCost(feeCost *big.Int) *big.Int {
	cost := new(big.Int).Mul(feeCost, p.pricePerFeeUnit)
	return cost.Div(cost, p.scalingFactor)
}

// ValidatePaymasterUserOp performs the signature check of the base paymaster
// and additionally requires the sender's token allowance to cover the
// worst-case cost. An insufficient allowance is a malformed-funding error,
// not a signature failure.
func (p *TokenPaymaster) ValidatePaymasterUserOp(ctx context.Context, op UserOperation, maxCost *big.Int) ([]byte, ValidationData, error) {
	opCtx, data, err := p.Paymaster.ValidatePaymasterUserOp(ctx, op, maxCost)
	if err != nil || data.SigFailed {
		return opCtx, data, err
	}

	maxTokenCost := p.TokenCost(maxCost)
	allowance, err := p.token.Allowance(ctx, op.Sender, p.address)
	if err != nil {
		return nil, ValidationData{}, fmt.Errorf("failed to read token allowance: %w", err)
	}
	if allowance.Cmp(maxTokenCost) < 0 {
		return nil, ValidationData{}, fmt.Errorf("token allowance %s below worst-case cost %s", allowance, maxTokenCost)
	}

	return opCtx, data, nil
}

// PostOp pulls the actual token-equivalent cost from the sender and then
// records the native-denominated accounting. The allowance is not re-checked
// here; a transfer failure surfaces as the PostOp error.
func (p *TokenPaymaster) PostOp(ctx context.Context, mode PostOpMode, opCtx []byte, actualFeeCost *big.Int) error {
	sender, err := senderFromContext(opCtx)
	if err != nil {
		return err
	}

	tokenCost := p.TokenCost(actualFeeCost)
	if err := p.token.TransferFrom(ctx, sender, p.address, tokenCost); err != nil {
		p.logger.Error("Token fee pull failed",
			zap.String("sender", sender.Hex()),
			zap.String("token_cost", tokenCost.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to pull token fee: %w", err)
	}

	p.recordUsage(sender, actualFeeCost)
	return nil
}
