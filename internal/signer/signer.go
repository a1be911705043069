// Package signer provides the signing identity used to build read-only
// contract-call contexts and to sign issued fee quotes for downstream
// verification.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// Identity is an authenticated identity backed by an ECDSA key. It never
// signs transactions; the key is used for read-only call contexts and for
// quote attestation.
type Identity struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewIdentity generates a fresh ephemeral identity.
func NewIdentity() (*Identity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return fromKey(key), nil
}

// FromHex loads an identity from a hex-encoded private key, as stored in the
// SIGNER_KEY environment variable.
func FromHex(hexKey string) (*Identity, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	return fromKey(key), nil
}

func fromKey(key *ecdsa.PrivateKey) *Identity {
	id := &Identity{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
	logrus.Infof("Signer identity initialized: %s", id.address.Hex())
	return id
}

// Address returns the identity's account address.
func (id *Identity) Address() common.Address {
	return id.address
}

// CallOpts builds a read-only contract-call context for this identity.
func (id *Identity) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{
		From:    id.address,
		Context: ctx,
	}
}

// SignedQuote wraps a fee quote with its attestation.
type SignedQuote struct {
	Quote     model.FeeQuote `json:"quote"`
	Signer    common.Address `json:"signer"`
	Signature string         `json:"signature"`
}

// SignQuote signs the keccak256 digest of the quote's JSON encoding.
func (id *Identity) SignQuote(quote model.FeeQuote) (SignedQuote, error) {
	payload, err := json.Marshal(quote)
	if err != nil {
		return SignedQuote{}, fmt.Errorf("failed to marshal quote: %w", err)
	}

	sig, err := crypto.Sign(crypto.Keccak256(payload), id.privateKey)
	if err != nil {
		return SignedQuote{}, fmt.Errorf("failed to sign quote: %w", err)
	}

	return SignedQuote{
		Quote:     quote,
		Signer:    id.address,
		Signature: hexutil.Encode(sig),
	}, nil
}

// VerifyQuote checks that a signed quote was produced by the signer it names.
func VerifyQuote(sq SignedQuote) (bool, error) {
	payload, err := json.Marshal(sq.Quote)
	if err != nil {
		return false, fmt.Errorf("failed to marshal quote: %w", err)
	}

	sig, err := hexutil.Decode(sq.Signature)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}

	pubKey, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey) == sq.Signer, nil
}
