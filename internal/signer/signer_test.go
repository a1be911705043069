package signer

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

func testQuote() model.FeeQuote {
	return model.FeeQuote{
		SourceChainID: 1,
		DestChainID:   167,
		Method:        model.FeeMethodRecommended,
		TokenSymbol:   "TST",
		Fee:           "0.000042",
		GasPriceWei:   "2",
		GasLimit:      1_000_000,
		IssuedAt:      time.Now().Unix(),
	}
}

func TestFromHex(t *testing.T) {
	// Well-known test vector: key 0x01 maps to this address
	id, err := FromHex("0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"), id.Address())
}

func TestFromHexInvalid(t *testing.T) {
	_, err := FromHex("not-a-key")
	require.Error(t, err)
}

func TestCallOpts(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	ctx := context.Background()
	opts := id.CallOpts(ctx)
	require.NotNil(t, opts)
	assert.Equal(t, id.Address(), opts.From)
	assert.Equal(t, ctx, opts.Context)
	assert.Nil(t, opts.BlockNumber, "call context must target the latest block")
}

func TestSignAndVerifyQuote(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	signed, err := id.SignQuote(testQuote())
	require.NoError(t, err)
	assert.Equal(t, id.Address(), signed.Signer)

	ok, err := VerifyQuote(signed)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyQuoteRejectsTampering(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	signed, err := id.SignQuote(testQuote())
	require.NoError(t, err)

	signed.Quote.Fee = "999"

	ok, err := VerifyQuote(signed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyQuoteRejectsWrongSigner(t *testing.T) {
	a, err := NewIdentity()
	require.NoError(t, err)
	b, err := NewIdentity()
	require.NoError(t, err)

	signed, err := a.SignQuote(testQuote())
	require.NoError(t, err)
	signed.Signer = b.Address()

	ok, err := VerifyQuote(signed)
	require.NoError(t, err)
	assert.False(t, ok)
}
