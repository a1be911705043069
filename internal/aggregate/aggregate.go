// Package aggregate combines gas-price samples from multiple providers into
// a single price, so that one misbehaving RPC endpoint cannot skew a quote.
package aggregate

import (
	"math/big"
	"sort"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// Median returns the median price of the given samples, or nil when no
// usable sample exists. For an even count the two middle values are averaged.
// The median is the default mode: it tolerates up to half of the providers
// reporting garbage.
func Median(samples []model.PriceSample) *big.Int {
	prices := sortedPrices(samples)
	if len(prices) == 0 {
		return nil
	}

	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return new(big.Int).Set(prices[mid])
	}

	sum := new(big.Int).Add(prices[mid-1], prices[mid])
	return sum.Div(sum, big.NewInt(2))
}

// Weighted returns the weight-weighted average price. Samples with a zero or
// negative weight are counted with unit weight. Returns nil when no usable
// sample exists.
func Weighted(samples []model.PriceSample) *big.Int {
	var totalWeight float64
	acc := new(big.Float)

	for _, s := range samples {
		if s.PriceWei == nil || s.PriceWei.Sign() <= 0 {
			continue
		}
		weight := s.Weight
		if weight <= 0 {
			weight = 1.0
		}

		term := new(big.Float).SetInt(s.PriceWei)
		term.Mul(term, big.NewFloat(weight))
		acc.Add(acc, term)
		totalWeight += weight
	}

	if totalWeight == 0 {
		return nil
	}

	acc.Quo(acc, big.NewFloat(totalWeight))
	result, _ := acc.Int(nil)
	return result
}

// TrimmedMean drops the given fraction of samples from each tail of the
// sorted price list and averages the rest. A trim of 0.1 with ten samples
// drops the single lowest and single highest price. Returns nil when no
// usable sample exists.
func TrimmedMean(samples []model.PriceSample, trim float64) *big.Int {
	prices := sortedPrices(samples)
	if len(prices) == 0 {
		return nil
	}

	drop := int(float64(len(prices)) * trim)
	if drop*2 >= len(prices) {
		// Trimming would remove everything, fall back to the full set
		drop = 0
	}
	prices = prices[drop : len(prices)-drop]

	sum := new(big.Int)
	for _, p := range prices {
		sum.Add(sum, p)
	}
	return sum.Div(sum, big.NewInt(int64(len(prices))))
}

// sortedPrices extracts the usable prices in ascending order.
func sortedPrices(samples []model.PriceSample) []*big.Int {
	prices := make([]*big.Int, 0, len(samples))
	for _, s := range samples {
		if s.PriceWei != nil && s.PriceWei.Sign() > 0 {
			prices = append(prices, s.PriceWei)
		}
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Cmp(prices[j]) < 0
	})
	return prices
}
