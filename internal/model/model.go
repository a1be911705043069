// Package model defines the core data structures for the bridge-fee-estimator.
package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain describes a blockchain network that tokens can be bridged to or from.
// Only the ID participates in fee math; the rest is native-currency context
// and the well-known bridge deployment for the chain.
type Chain struct {
	// ID is the EIP-155 chain identifier
	ID uint64 `json:"id"`

	// Name is a human readable network name, e.g. "ethereum"
	Name string `json:"name"`

	// NativeSymbol is the ticker of the chain's native currency
	NativeSymbol string `json:"native_symbol"`

	// NativeDecimals is the precision of the native currency (18 for EVM chains)
	NativeDecimals uint8 `json:"native_decimals"`

	// BridgeAddress is the TokenBridge contract deployed on this chain
	BridgeAddress common.Address `json:"bridge_address"`
}

// TokenKind distinguishes the chain's native coin from fungible contract tokens.
type TokenKind int

// Token kinds
const (
	TokenNative   TokenKind = iota // native coin, no contract address
	TokenFungible                  // ERC-20 style token with per-chain deployments
)

// Token is a variant-tagged token descriptor. The native coin carries no
// address table; a fungible token maps each chain it is deployed on to its
// contract address there.
type Token struct {
	Kind     TokenKind `json:"kind"`
	Name     string    `json:"name"`
	Symbol   string    `json:"symbol"`
	Decimals uint8     `json:"decimals"`

	// Addresses maps chain ID to the token's contract address on that chain.
	// Empty for the native coin.
	Addresses map[uint64]common.Address `json:"addresses,omitempty"`
}

// NativeToken returns the distinguished native-coin token descriptor.
func NativeToken(name, symbol string, decimals uint8) Token {
	return Token{
		Kind:     TokenNative,
		Name:     name,
		Symbol:   symbol,
		Decimals: decimals,
	}
}

// FungibleToken returns a fungible token descriptor with its per-chain
// address table.
func FungibleToken(name, symbol string, decimals uint8, addresses map[uint64]common.Address) Token {
	return Token{
		Kind:      TokenFungible,
		Name:      name,
		Symbol:    symbol,
		Decimals:  decimals,
		Addresses: addresses,
	}
}

// IsNative reports whether the token is the native coin.
func (t Token) IsNative() bool {
	return t.Kind == TokenNative
}

// AddressOn looks up the token's contract address on the given chain.
// A missing entry is an error, never a silent zero address: callers must be
// able to tell "not configured" apart from the zero-address sentinel.
func (t Token) AddressOn(chainID uint64) (common.Address, error) {
	if t.Kind == TokenNative {
		return common.Address{}, fmt.Errorf("native token %s has no contract address", t.Symbol)
	}
	addr, ok := t.Addresses[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("token %s has no deployment on chain %d", t.Symbol, chainID)
	}
	return addr, nil
}

// FeeMethod selects a fee estimation strategy. Only one computation path is
// implemented; every method currently yields the recommended estimate, and
// distinct strategies would branch before the gas-limit selection.
type FeeMethod string

// Known fee methods
const (
	FeeMethodRecommended FeeMethod = "recommended"
	FeeMethodFast        FeeMethod = "fast"
	FeeMethodCustom      FeeMethod = "custom"
)

// ParseFeeMethod converts a request string into a FeeMethod.
func ParseFeeMethod(s string) (FeeMethod, error) {
	switch FeeMethod(s) {
	case FeeMethodRecommended, FeeMethodFast, FeeMethodCustom:
		return FeeMethod(s), nil
	default:
		return "", fmt.Errorf("unknown fee method %q", s)
	}
}

// PriceSample is a single gas-price observation from one provider.
// This is the data point that flows through validation, aggregation and the
// circuit breaker.
type PriceSample struct {
	// Provider is the unique identifier of the price source
	Provider string `json:"provider"`

	// ChainID is the chain this observation belongs to
	ChainID uint64 `json:"chain_id"`

	// PriceWei is the observed gas price in the chain's smallest unit
	PriceWei *big.Int `json:"price_wei"`

	// Weight for cross-provider aggregation
	Weight float64 `json:"weight,omitempty"`

	// CollectedAt is the Unix timestamp when this sample was collected
	CollectedAt int64 `json:"collected_at"`

	// Confidence score assigned during validation, if any
	Confidence float64 `json:"confidence,omitempty"`
}

// NewPriceSample creates a sample with the current timestamp and unit weight.
func NewPriceSample(provider string, chainID uint64, priceWei *big.Int) PriceSample {
	return PriceSample{
		Provider:    provider,
		ChainID:     chainID,
		PriceWei:    priceWei,
		Weight:      1.0,
		CollectedAt: time.Now().Unix(),
	}
}

// IsValid performs basic validation on this sample.
func (s PriceSample) IsValid() bool {
	return s.PriceWei != nil &&
		s.PriceWei.Sign() > 0 &&
		s.Provider != "" &&
		time.Since(time.Unix(s.CollectedAt, 0)) < time.Hour
}

// WithConfidence adds a confidence score to the sample.
func (s PriceSample) WithConfidence(confidence float64) PriceSample {
	s.Confidence = confidence
	return s
}

// FeeQuote is an issued fee estimate, kept for export and observability.
type FeeQuote struct {
	SourceChainID uint64    `json:"source_chain_id"`
	DestChainID   uint64    `json:"dest_chain_id"`
	Method        FeeMethod `json:"method"`
	TokenSymbol   string    `json:"token_symbol"`

	// Fee is the recommended fee in destination native currency, decimal string
	Fee string `json:"fee"`

	// GasPriceWei and GasLimit record the inputs the quote was derived from
	GasPriceWei string `json:"gas_price_wei"`
	GasLimit    uint64 `json:"gas_limit"`

	IssuedAt int64 `json:"issued_at"`
}
