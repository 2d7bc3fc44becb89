// Package ethsign is the single place where the sponsorship wire format is
// encoded and where personal-message signatures are produced and recovered.
// Both the issuance side (sponsor.Signer) and the validation side
// (paymaster.Paymaster) go through this package, so the two can never drift.
package ethsign

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a signature is malformed (wrong length
// or unrecoverable public key).
var ErrInvalidSignature = errors.New("invalid signature")

// Signer holds the sponsor's secp256k1 key and signs digests using the
// Ethereum personal-message convention, matching ecrecover on the chain side.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex-encoded private key (with or without 0x prefix)
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the address corresponding to the signing key
func (s *Signer) Address() common.Address {
	return s.address
}

// SignDigest prefixes the digest per EIP-191 ("\x19Ethereum Signed
// Message:\n32") and signs the result. The returned signature is 65 bytes
// with V in {27, 28}, the format expected by on-chain ECDSA recovery.
func (s *Signer) SignDigest(digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(prefixedDigest(digest), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that signed the given digest under the
// personal-message convention. It accepts V in {0, 1} or {27, 28}.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrInvalidSignature
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(prefixedDigest(digest), normalized)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func prefixedDigest(digest common.Hash) []byte {
	return crypto.Keccak256(
		[]byte("\x19Ethereum Signed Message:\n32"),
		digest.Bytes(),
	)
}

// AuthorizationDigest computes the sponsorship authorization hash. Field
// order and widths are a wire format shared with the paymaster contract:
// abi.encodePacked(sender, uint48(validUntil), uint48(validAfter),
// paymaster, uint256(chainID), entryPoint).
func AuthorizationDigest(sender common.Address, validUntil, validAfter uint64, paymaster common.Address, chainID *big.Int, entryPoint common.Address) common.Hash {
	packed := make([]byte, 0, 20+6+6+20+32+20)
	packed = append(packed, sender.Bytes()...)
	packed = append(packed, packUint48(validUntil)...)
	packed = append(packed, packUint48(validAfter)...)
	packed = append(packed, paymaster.Bytes()...)
	packed = append(packed, common.LeftPadBytes(chainID.Bytes(), 32)...)
	packed = append(packed, entryPoint.Bytes()...)
	return crypto.Keccak256Hash(packed)
}

// PackValidityWindow encodes (validUntil, validAfter) as two uint48 values,
// the leading section of the paymasterAndData authorization blob.
func PackValidityWindow(validUntil, validAfter uint64) []byte {
	blob := make([]byte, 0, 12)
	blob = append(blob, packUint48(validUntil)...)
	blob = append(blob, packUint48(validAfter)...)
	return blob
}

// UnpackValidityWindow decodes a blob produced by PackValidityWindow,
// returning the trailing signature bytes untouched.
func UnpackValidityWindow(blob []byte) (validUntil, validAfter uint64, sig []byte, err error) {
	if len(blob) < 12 {
		return 0, 0, nil, fmt.Errorf("authorization blob too short: %d bytes", len(blob))
	}
	return unpackUint48(blob[0:6]), unpackUint48(blob[6:12]), blob[12:], nil
}

func packUint48(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[2:]
}

func unpackUint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[2:], b)
	return binary.BigEndian.Uint64(buf[:])
}
