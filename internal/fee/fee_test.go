package fee

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// mockOracle records every gas-price query it receives.
type mockOracle struct {
	price *big.Int
	err   error
	calls []uint64
}

func (m *mockOracle) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	m.calls = append(m.calls, chainID)
	if m.err != nil {
		return nil, m.err
	}
	return new(big.Int).Set(m.price), nil
}

// mockRegistry records every bridged-address lookup it receives.
type mockRegistry struct {
	bridged common.Address
	err     error
	calls   []registryCall
}

type registryCall struct {
	destChainID uint64
	canonical   common.Address
	opts        *bind.CallOpts
}

func (m *mockRegistry) CanonicalToBridged(ctx context.Context, destChainID uint64, canonical common.Address, opts *bind.CallOpts) (common.Address, error) {
	m.calls = append(m.calls, registryCall{destChainID, canonical, opts})
	if m.err != nil {
		return common.Address{}, m.err
	}
	return m.bridged, nil
}

// mockSigner builds a fixed read-only call context.
type mockSigner struct {
	from common.Address
}

func (m *mockSigner) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{From: m.from, Context: ctx}
}

var (
	tokenAddrSrc   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	bridgedAddr    = common.HexToAddress("0x0000000000000000000000000000000000000123")
	srcChain       = &model.Chain{ID: 1, Name: "ethereum", NativeSymbol: "ETH", NativeDecimals: 18}
	dstChain       = &model.Chain{ID: 167, Name: "rollup", NativeSymbol: "ETH", NativeDecimals: 18}
	nativeToken    = model.NativeToken("Ether", "ETH", 18)
	fungibleToken  = model.FungibleToken("Test", "TST", 18, map[uint64]common.Address{1: tokenAddrSrc})
)

func newTestRecommender(price int64, bridged common.Address) (*Recommender, *mockOracle, *mockRegistry) {
	oracle := &mockOracle{price: big.NewInt(price)}
	registry := &mockRegistry{bridged: bridged}
	return NewRecommender(oracle, registry), oracle, registry
}

func TestEstimateMissingInputs(t *testing.T) {
	token := nativeToken
	signer := &mockSigner{}

	tests := []struct {
		name   string
		src    *model.Chain
		dst    *model.Chain
		method model.FeeMethod
		token  *model.Token
		signer Signer
	}{
		{"missing source chain", nil, dstChain, model.FeeMethodRecommended, &token, signer},
		{"missing dest chain", srcChain, nil, model.FeeMethodRecommended, &token, signer},
		{"missing method", srcChain, dstChain, "", &token, signer},
		{"missing token", srcChain, dstChain, model.FeeMethodRecommended, nil, signer},
		{"missing signer", srcChain, dstChain, model.FeeMethodRecommended, &token, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, oracle, registry := newTestRecommender(2, common.Address{})

			got, err := rec.Estimate(context.Background(), tt.src, tt.dst, tt.method, tt.token, tt.signer)
			require.NoError(t, err)
			assert.Equal(t, Zero, got)

			// The gate must fire before any external read
			assert.Empty(t, oracle.calls)
			assert.Empty(t, registry.calls)
		})
	}
}

func TestEstimateNativeToken(t *testing.T) {
	rec, oracle, registry := newTestRecommender(2, common.Address{})
	token := nativeToken

	got, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.NoError(t, err)

	want := FormatUnits(new(big.Int).Mul(big.NewInt(2), new(big.Int).SetUint64(DefaultEthGasLimit)), 18)
	assert.Equal(t, want, got)

	assert.Equal(t, []uint64{dstChain.ID}, oracle.calls)
	assert.Empty(t, registry.calls, "native token must not hit the registry")
}

func TestEstimateFungibleNotDeployed(t *testing.T) {
	rec, _, registry := newTestRecommender(2, common.Address{})
	token := fungibleToken

	got, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.NoError(t, err)

	want := FormatUnits(new(big.Int).Mul(big.NewInt(2), new(big.Int).SetUint64(DefaultErc20NotDeployedGasLimit)), 18)
	assert.Equal(t, want, got)
	require.Len(t, registry.calls, 1)
}

func TestEstimateFungibleDeployed(t *testing.T) {
	rec, _, registry := newTestRecommender(2, bridgedAddr)
	token := fungibleToken

	got, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.NoError(t, err)

	want := FormatUnits(new(big.Int).Mul(big.NewInt(2), new(big.Int).SetUint64(DefaultErc20DeployedGasLimit)), 18)
	assert.Equal(t, want, got)
	require.Len(t, registry.calls, 1)
}

func TestEstimateRegistryArguments(t *testing.T) {
	rec, _, registry := newTestRecommender(7, bridgedAddr)
	token := fungibleToken
	signerAddr := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	_, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{from: signerAddr})
	require.NoError(t, err)

	require.Len(t, registry.calls, 1)
	call := registry.calls[0]
	assert.Equal(t, dstChain.ID, call.destChainID)
	assert.Equal(t, tokenAddrSrc, call.canonical)
	require.NotNil(t, call.opts)
	assert.Equal(t, signerAddr, call.opts.From)
}

func TestEstimateMissingSourceAddress(t *testing.T) {
	rec, _, registry := newTestRecommender(2, bridgedAddr)
	token := model.FungibleToken("Test", "TST", 18, map[uint64]common.Address{42: tokenAddrSrc})

	_, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.Error(t, err)
	assert.Empty(t, registry.calls)
}

func TestEstimateOracleFailurePropagates(t *testing.T) {
	oracle := &mockOracle{err: errors.New("provider unreachable")}
	rec := NewRecommender(oracle, &mockRegistry{})
	token := nativeToken

	got, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.Error(t, err)
	assert.Empty(t, got, "failures must not surface as a zero-fee quote")
}

func TestEstimateRegistryFailurePropagates(t *testing.T) {
	rec, _, registry := newTestRecommender(2, common.Address{})
	registry.err = errors.New("execution reverted")
	token := fungibleToken

	_, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.Error(t, err)
}

func TestEstimateMethodPassThrough(t *testing.T) {
	// Only one strategy exists; every recognized method yields the same quote.
	token := nativeToken
	var quotes []string

	for _, method := range []model.FeeMethod{model.FeeMethodRecommended, model.FeeMethodFast, model.FeeMethodCustom} {
		rec, _, _ := newTestRecommender(3, common.Address{})
		got, err := rec.Estimate(context.Background(), srcChain, dstChain, method, &token, &mockSigner{})
		require.NoError(t, err)
		quotes = append(quotes, got)
	}

	assert.Equal(t, quotes[0], quotes[1])
	assert.Equal(t, quotes[0], quotes[2])
}

func TestEstimateIdempotent(t *testing.T) {
	rec, _, _ := newTestRecommender(5, bridgedAddr)
	token := fungibleToken

	first, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestEstimateCustomGasLimits(t *testing.T) {
	rec, _, _ := newTestRecommender(2, common.Address{})
	rec.WithGasLimits(GasLimits{Eth: 21_000, Erc20NotDeployed: 2_000_000, Erc20Deployed: 500_000})
	token := nativeToken

	got, err := rec.Estimate(context.Background(), srcChain, dstChain, model.FeeMethodRecommended, &token, &mockSigner{})
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000042", got)
}
