// Package oracle provides gas-price retrieval for the chains the estimator
// serves. Each chain can be backed by several providers; their samples are
// validated and aggregated so no single endpoint controls the quoted price.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/aggregate"
	"github.com/yourorg/bridge-fee-estimator/internal/model"
	"github.com/yourorg/bridge-fee-estimator/internal/validation"
)

// NetworkError indicates the gas price for a chain could not be obtained:
// the chain is unknown, every provider failed, or every sample was invalid.
type NetworkError struct {
	ChainID uint64
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gas price unavailable for chain %d: %v", e.ChainID, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Provider fetches one gas-price sample from a single source.
type Provider interface {
	// Name identifies the provider in logs and samples
	Name() string

	// Fetch retrieves the current gas price in wei
	Fetch(ctx context.Context) (model.PriceSample, error)
}

// Aggregation modes for combining provider samples
const (
	ModeMedian   = "median"
	ModeWeighted = "weighted"
	ModeTrimmed  = "trimmed"
)

// MultiProviderOracle fans a gas-price query out to every provider registered
// for a chain, filters the samples and aggregates the survivors.
type MultiProviderOracle struct {
	mode           string
	validationOpts validation.Options

	mu        sync.RWMutex
	providers map[uint64][]Provider
}

// NewMultiProviderOracle creates an oracle with median aggregation and the
// default validation options.
func NewMultiProviderOracle() *MultiProviderOracle {
	return &MultiProviderOracle{
		mode:           ModeMedian,
		validationOpts: validation.DefaultOptions(),
		providers:      make(map[uint64][]Provider),
	}
}

// WithMode sets the aggregation mode and returns the oracle.
func (o *MultiProviderOracle) WithMode(mode string) *MultiProviderOracle {
	switch mode {
	case ModeMedian, ModeWeighted, ModeTrimmed:
		o.mode = mode
	default:
		logrus.Warnf("Unknown aggregation mode %q, keeping %q", mode, o.mode)
	}
	return o
}

// WithValidationOptions overrides the sample validation options.
func (o *MultiProviderOracle) WithValidationOptions(opts validation.Options) *MultiProviderOracle {
	o.validationOpts = opts
	return o
}

// RegisterProvider adds a gas-price provider for a specific chain.
func (o *MultiProviderOracle) RegisterProvider(chainID uint64, provider Provider) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.providers[chainID] = append(o.providers[chainID], provider)
	logrus.Infof("Registered gas price provider %s for chain %d", provider.Name(), chainID)
}

// GasPrice returns the aggregated current gas price for a chain in wei.
func (o *MultiProviderOracle) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	price, _, err := o.Observe(ctx, chainID)
	return price, err
}

// Observe returns the aggregated gas price together with the valid samples
// it was derived from, so callers can apply their own anomaly checks.
func (o *MultiProviderOracle) Observe(ctx context.Context, chainID uint64) (*big.Int, []model.PriceSample, error) {
	o.mu.RLock()
	providers := o.providers[chainID]
	o.mu.RUnlock()

	if len(providers) == 0 {
		return nil, nil, &NetworkError{ChainID: chainID, Err: errors.New("no providers configured")}
	}

	samples, errs := o.fetchAll(ctx, chainID, providers)
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	valid := validation.FilterInvalidWithOptions(samples, o.validationOpts)
	if len(valid) == 0 {
		err := errors.New("no valid samples")
		if len(errs) > 0 {
			err = errs[0]
		}
		return nil, nil, &NetworkError{ChainID: chainID, Err: err}
	}

	var price *big.Int
	switch o.mode {
	case ModeWeighted:
		price = aggregate.Weighted(valid)
	case ModeTrimmed:
		price = aggregate.TrimmedMean(valid, 0.1)
	default:
		price = aggregate.Median(valid)
	}

	if price == nil || price.Sign() <= 0 {
		return nil, nil, &NetworkError{ChainID: chainID, Err: errors.New("aggregation produced no price")}
	}

	logrus.WithFields(logrus.Fields{
		"chain":     chainID,
		"providers": len(providers),
		"samples":   len(valid),
		"mode":      o.mode,
		"price_wei": price.String(),
	}).Debug("Gas price aggregated")

	return price, valid, nil
}

// fetchAll queries every provider concurrently and collects whatever arrives.
func (o *MultiProviderOracle) fetchAll(ctx context.Context, chainID uint64, providers []Provider) ([]model.PriceSample, []error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		samples []model.PriceSample
		errs    []error
	)

	for _, provider := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			sample, err := p.Fetch(ctx)
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				logrus.Warnf("Provider %s failed for chain %d: %v", p.Name(), chainID, err)
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				return
			}
			sample.ChainID = chainID
			samples = append(samples, sample)
		}(provider)
	}

	wg.Wait()
	return samples, errs
}
