package ethsign_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseralabs/tessera-api/internal/ethsign"
)

const (
	signerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	rogueKey  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	sender     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	paymaster  = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	entryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
)

func TestNewSigner(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		expectError bool
	}{
		{name: "plain hex key", key: signerKey},
		{name: "0x-prefixed key", key: "0x" + signerKey},
		{name: "garbage", key: "not-a-key", expectError: true},
		{name: "empty", key: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ethsign.NewSigner(tt.key)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.NotEqual(t, common.Address{}, s.Address())
			}
		})
	}
}

func TestSignAndRecover(t *testing.T) {
	s, err := ethsign.NewSigner(signerKey)
	require.NoError(t, err)

	digest := ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_000, paymaster, big.NewInt(1), entryPoint)
	sig, err := s.SignDigest(digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := ethsign.Recover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestRecover_WrongKey(t *testing.T) {
	s, err := ethsign.NewSigner(signerKey)
	require.NoError(t, err)
	rogue, err := ethsign.NewSigner(rogueKey)
	require.NoError(t, err)

	digest := ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_000, paymaster, big.NewInt(1), entryPoint)
	sig, err := rogue.SignDigest(digest)
	require.NoError(t, err)

	recovered, err := ethsign.Recover(digest, sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), recovered)
	assert.Equal(t, rogue.Address(), recovered)
}

func TestRecover_MalformedSignature(t *testing.T) {
	digest := ethsign.AuthorizationDigest(sender, 1, 0, paymaster, big.NewInt(1), entryPoint)
	_, err := ethsign.Recover(digest, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, ethsign.ErrInvalidSignature)
}

func TestAuthorizationDigest_FieldSensitivity(t *testing.T) {
	base := ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_000, paymaster, big.NewInt(1), entryPoint)

	tests := []struct {
		name   string
		digest common.Hash
	}{
		{"different sender", ethsign.AuthorizationDigest(common.HexToAddress("0x3"), 2_000_000_000, 1_900_000_000, paymaster, big.NewInt(1), entryPoint)},
		{"different validUntil", ethsign.AuthorizationDigest(sender, 2_000_000_001, 1_900_000_000, paymaster, big.NewInt(1), entryPoint)},
		{"different validAfter", ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_001, paymaster, big.NewInt(1), entryPoint)},
		{"different paymaster", ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_000, entryPoint, big.NewInt(1), entryPoint)},
		{"different chain", ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_000, paymaster, big.NewInt(2), entryPoint)},
		{"different entry point", ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_000, paymaster, big.NewInt(1), paymaster)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.digest)
		})
	}

	// Same inputs always produce the same digest.
	again := ethsign.AuthorizationDigest(sender, 2_000_000_000, 1_900_000_000, paymaster, big.NewInt(1), entryPoint)
	assert.Equal(t, base, again)
}

func TestValidityWindowRoundTrip(t *testing.T) {
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i)
	}
	blob := append(ethsign.PackValidityWindow(2_000_000_000, 1_900_000_000), sig...)

	validUntil, validAfter, gotSig, err := ethsign.UnpackValidityWindow(blob)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), validUntil)
	assert.Equal(t, uint64(1_900_000_000), validAfter)
	assert.Equal(t, sig, gotSig)

	_, _, _, err = ethsign.UnpackValidityWindow([]byte{0x01})
	assert.Error(t, err)
}
