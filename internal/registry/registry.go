// Package registry resolves canonical token addresses to their bridged
// counterparts by reading the TokenBridge contract on the destination chain.
package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ContractCallError indicates the bridged-address lookup failed, either
// because the call reverted or because the chain's node was unreachable.
type ContractCallError struct {
	ChainID  uint64
	Contract common.Address
	Err      error
}

func (e *ContractCallError) Error() string {
	return fmt.Sprintf("bridge registry call on chain %d (%s) failed: %v", e.ChainID, e.Contract.Hex(), e.Err)
}

func (e *ContractCallError) Unwrap() error {
	return e.Err
}

// tokenBridgeABI covers the single read the estimator needs.
const tokenBridgeABI = `[{"inputs":[{"internalType":"uint256","name":"chainId","type":"uint256"},{"internalType":"address","name":"canonical","type":"address"}],"name":"canonicalToBridged","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// contractCaller is the part of ethclient.Client the registry needs.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// chainBinding pairs a chain's RPC client with its bridge deployment.
type chainBinding struct {
	caller contractCaller
	bridge common.Address
}

// BridgeRegistry issues read-only canonicalToBridged calls against the
// bridge contract registered for each destination chain.
type BridgeRegistry struct {
	abi abi.ABI

	mu     sync.RWMutex
	chains map[uint64]chainBinding
}

// NewBridgeRegistry creates an empty registry. Chains are added with
// RegisterChain before any lookup can succeed.
func NewBridgeRegistry() (*BridgeRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(tokenBridgeABI))
	if err != nil {
		return nil, fmt.Errorf("parsing token bridge ABI: %w", err)
	}

	return &BridgeRegistry{
		abi:    parsed,
		chains: make(map[uint64]chainBinding),
	}, nil
}

// RegisterChain dials the chain's RPC endpoint and records its bridge
// contract address.
func (r *BridgeRegistry) RegisterChain(chainID uint64, rpcURL string, bridge common.Address) error {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return fmt.Errorf("dialing chain %d: %w", chainID, err)
	}

	r.registerCaller(chainID, client, bridge)
	logrus.Infof("Registered bridge %s for chain %d", bridge.Hex(), chainID)
	return nil
}

// registerCaller installs a caller directly, used by RegisterChain and tests.
func (r *BridgeRegistry) registerCaller(chainID uint64, caller contractCaller, bridge common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[chainID] = chainBinding{caller: caller, bridge: bridge}
}

// CanonicalToBridged returns the bridged counterpart of the canonical token
// on the destination chain. The zero address means no bridged deployment
// exists there yet.
func (r *BridgeRegistry) CanonicalToBridged(ctx context.Context, destChainID uint64, canonical common.Address, opts *bind.CallOpts) (common.Address, error) {
	r.mu.RLock()
	binding, ok := r.chains[destChainID]
	r.mu.RUnlock()

	if !ok {
		return common.Address{}, &ContractCallError{
			ChainID: destChainID,
			Err:     fmt.Errorf("chain %d not registered", destChainID),
		}
	}

	input, err := r.abi.Pack("canonicalToBridged", new(big.Int).SetUint64(destChainID), canonical)
	if err != nil {
		return common.Address{}, &ContractCallError{ChainID: destChainID, Contract: binding.bridge, Err: err}
	}

	msg := ethereum.CallMsg{
		To:   &binding.bridge,
		Data: input,
	}
	var blockNumber *big.Int
	if opts != nil {
		msg.From = opts.From
		blockNumber = opts.BlockNumber
		if opts.Context != nil {
			ctx = opts.Context
		}
	}

	output, err := binding.caller.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return common.Address{}, &ContractCallError{ChainID: destChainID, Contract: binding.bridge, Err: err}
	}

	results, err := r.abi.Unpack("canonicalToBridged", output)
	if err != nil {
		return common.Address{}, &ContractCallError{ChainID: destChainID, Contract: binding.bridge, Err: err}
	}

	bridged := *abi.ConvertType(results[0], new(common.Address)).(*common.Address)

	logrus.WithFields(logrus.Fields{
		"chain":     destChainID,
		"canonical": canonical.Hex(),
		"bridged":   bridged.Hex(),
	}).Debug("Bridged address resolved")

	return bridged, nil
}
