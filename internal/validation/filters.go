// Package validation provides filtering and sanity checks for gas-price
// samples before they reach aggregation.
package validation

import (
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/aggregate"
	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// Options holds configuration for the validation process
type Options struct {
	// MaxAge defines how recent a sample must be to be considered valid
	MaxAge time.Duration

	// MaxPriceWei is the highest gas price accepted from any provider.
	// Nil disables the cap.
	MaxPriceWei *big.Int

	// MaxDeviation is the largest accepted ratio between a sample and the
	// set's median before the sample is dropped as an outlier (e.g. 10.0
	// drops anything more than 10x above or below the median)
	MaxDeviation float64

	// EnableOutlierDetection enables the median-deviation filter
	EnableOutlierDetection bool
}

// DefaultOptions returns sensible defaults for validation.
func DefaultOptions() Options {
	// 10k gwei ceiling catches providers quoting in the wrong unit
	maxPrice := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1_000_000_000))

	return Options{
		MaxAge:                 5 * time.Minute,
		MaxPriceWei:            maxPrice,
		MaxDeviation:           10.0,
		EnableOutlierDetection: true,
	}
}

// FilterInvalid removes samples that fail basic validation criteria.
// This is the main entrypoint for the validation package.
func FilterInvalid(samples []model.PriceSample) []model.PriceSample {
	return FilterInvalidWithOptions(samples, DefaultOptions())
}

// FilterInvalidWithOptions removes samples with custom validation options.
func FilterInvalidWithOptions(samples []model.PriceSample, opts Options) []model.PriceSample {
	valid := filterBasicCriteria(samples, opts)

	if opts.EnableOutlierDetection && len(valid) > 2 {
		return filterOutliers(valid, opts.MaxDeviation)
	}
	return valid
}

// filterBasicCriteria applies fundamental validation rules to each sample
func filterBasicCriteria(samples []model.PriceSample, opts Options) []model.PriceSample {
	valid := make([]model.PriceSample, 0, len(samples))

	for _, s := range samples {
		if s.PriceWei == nil || s.PriceWei.Sign() <= 0 {
			logrus.Debugf("Dropping sample from %s: missing or non-positive price", s.Provider)
			continue
		}
		if s.Provider == "" {
			continue
		}
		if opts.MaxAge > 0 && time.Since(time.Unix(s.CollectedAt, 0)) > opts.MaxAge {
			logrus.Debugf("Dropping stale sample from %s", s.Provider)
			continue
		}
		if opts.MaxPriceWei != nil && s.PriceWei.Cmp(opts.MaxPriceWei) > 0 {
			logrus.Warnf("Dropping sample from %s: price %s above cap", s.Provider, s.PriceWei.String())
			continue
		}
		valid = append(valid, s)
	}

	return valid
}

// filterOutliers drops samples too far from the set's median price
func filterOutliers(samples []model.PriceSample, maxDeviation float64) []model.PriceSample {
	median := aggregate.Median(samples)
	if median == nil || median.Sign() == 0 || maxDeviation <= 0 {
		return samples
	}

	medianF := new(big.Float).SetInt(median)
	kept := make([]model.PriceSample, 0, len(samples))

	for _, s := range samples {
		ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(s.PriceWei), medianF).Float64()
		if ratio > maxDeviation || ratio < 1/maxDeviation {
			logrus.Warnf("Dropping outlier sample from %s: %.2fx the median", s.Provider, ratio)
			continue
		}
		kept = append(kept, s)
	}

	// Never filter down to nothing when the inputs were individually valid
	if len(kept) == 0 {
		return samples
	}
	return kept
}

// ConfidenceScores assigns each sample a confidence score in [0,1] based on
// its distance from the median price. Samples at the median score 1.0.
func ConfidenceScores(samples []model.PriceSample) []model.PriceSample {
	median := aggregate.Median(samples)
	if median == nil || median.Sign() == 0 {
		return samples
	}

	medianF := new(big.Float).SetInt(median)
	scored := make([]model.PriceSample, len(samples))

	for i, s := range samples {
		if s.PriceWei == nil || s.PriceWei.Sign() <= 0 {
			scored[i] = s.WithConfidence(0)
			continue
		}

		ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(s.PriceWei), medianF).Float64()
		if ratio > 1 {
			ratio = 1 / ratio
		}
		scored[i] = s.WithConfidence(ratio)
	}

	return scored
}
