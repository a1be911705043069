// Package fee computes the recommended network fee for bridging a token
// between two chains, denominated in the destination chain's native currency.
package fee

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// Zero is the sentinel fee returned while any required input is missing.
// It means "not yet computable", not "free".
const Zero = "0"

// Default gas cost ceilings for the three bridging shapes. Bridging a token
// for the first time deploys its bridged contract on the destination chain,
// hence the much higher ceiling.
const (
	DefaultEthGasLimit              uint64 = 100_000
	DefaultErc20NotDeployedGasLimit uint64 = 3_000_000
	DefaultErc20DeployedGasLimit    uint64 = 1_000_000
)

// Oracle returns the current gas price for a chain in the chain's smallest
// native-currency unit.
type Oracle interface {
	GasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
}

// Registry resolves a canonical token address to its bridged counterpart on
// a destination chain. The zero address means no bridged deployment exists.
type Registry interface {
	CanonicalToBridged(ctx context.Context, destChainID uint64, canonical common.Address, opts *bind.CallOpts) (common.Address, error)
}

// Signer supplies the read-only call context used for registry lookups.
type Signer interface {
	CallOpts(ctx context.Context) *bind.CallOpts
}

// GasLimits holds the gas cost ceilings used for fee estimation. The values
// are fixed at construction and never change afterwards.
type GasLimits struct {
	Eth              uint64 `json:"eth_gas_limit"`
	Erc20NotDeployed uint64 `json:"erc20_not_deployed_gas_limit"`
	Erc20Deployed    uint64 `json:"erc20_deployed_gas_limit"`
}

// DefaultGasLimits returns the standard gas-limit table.
func DefaultGasLimits() GasLimits {
	return GasLimits{
		Eth:              DefaultEthGasLimit,
		Erc20NotDeployed: DefaultErc20NotDeployedGasLimit,
		Erc20Deployed:    DefaultErc20DeployedGasLimit,
	}
}

// Recommender computes recommended bridging fees from a gas-price oracle and
// a token-bridge registry. Both collaborators are injected so the computation
// is testable without a live network.
type Recommender struct {
	oracle   Oracle
	registry Registry
	limits   GasLimits
}

// NewRecommender creates a Recommender with the default gas-limit table.
func NewRecommender(oracle Oracle, registry Registry) *Recommender {
	return &Recommender{
		oracle:   oracle,
		registry: registry,
		limits:   DefaultGasLimits(),
	}
}

// WithGasLimits overrides the gas-limit table and returns the recommender.
func (r *Recommender) WithGasLimits(limits GasLimits) *Recommender {
	r.limits = limits
	return r
}

// Estimate returns the recommended fee for bridging token from src to dst,
// as a decimal string in the destination chain's native currency.
//
// If any input is absent the sentinel "0" is returned without touching the
// network. Otherwise the fee is gasPrice(dst) multiplied by the gas-limit
// ceiling for the token's bridging shape: native coin, fungible token whose
// bridged counterpart is not yet deployed, or fungible token already bridged.
// Oracle and registry failures propagate to the caller; a zero result is
// never used to mask them.
func (r *Recommender) Estimate(ctx context.Context, src, dst *model.Chain, method model.FeeMethod, token *model.Token, signer Signer) (string, error) {
	if src == nil || dst == nil || method == "" || token == nil || signer == nil {
		return Zero, nil
	}

	gasPrice, err := r.oracle.GasPrice(ctx, dst.ID)
	if err != nil {
		return "", fmt.Errorf("gas price for chain %d: %w", dst.ID, err)
	}

	gasLimit, err := r.selectGasLimit(ctx, src, dst, token, signer)
	if err != nil {
		return "", err
	}

	raw := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	result := FormatUnits(raw, dst.NativeDecimals)

	logrus.WithFields(logrus.Fields{
		"source_chain": src.ID,
		"dest_chain":   dst.ID,
		"token":        token.Symbol,
		"method":       method,
		"gas_price":    gasPrice.String(),
		"gas_limit":    gasLimit,
		"fee":          result,
	}).Debug("Fee estimate computed")

	return result, nil
}

// selectGasLimit picks the gas ceiling for the token's bridging shape.
// Fungible tokens require one registry read against the destination chain to
// learn whether their bridged counterpart is already deployed.
func (r *Recommender) selectGasLimit(ctx context.Context, src, dst *model.Chain, token *model.Token, signer Signer) (uint64, error) {
	if token.IsNative() {
		return r.limits.Eth, nil
	}

	canonical, err := token.AddressOn(src.ID)
	if err != nil {
		return 0, fmt.Errorf("resolving %s on source chain: %w", token.Symbol, err)
	}

	bridged, err := r.registry.CanonicalToBridged(ctx, dst.ID, canonical, signer.CallOpts(ctx))
	if err != nil {
		return 0, fmt.Errorf("bridged address lookup for %s: %w", token.Symbol, err)
	}

	if bridged == (common.Address{}) {
		return r.limits.Erc20NotDeployed, nil
	}
	return r.limits.Erc20Deployed, nil
}
