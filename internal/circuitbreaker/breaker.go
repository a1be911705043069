// Package circuitbreaker provides a defensive mechanism against anomalous
// gas-price data, so that a glitching provider set cannot turn into absurd
// fee quotes handed to users.
package circuitbreaker

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, estimates blocked
	StateHalfOpen              // Testing if the data has recovered
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Thresholds defines the limits that will trip the circuit breaker
type Thresholds struct {
	// MaxPriceWei is the highest aggregated gas price accepted for any chain.
	// Nil disables the check.
	MaxPriceWei *big.Int `json:"max_price_wei"`

	// MaxPriceJump is the largest accepted ratio between the aggregated price
	// and the last good price for the same chain (e.g. 20.0 for a 20x jump)
	MaxPriceJump float64 `json:"max_price_jump"`

	// MinProviders is the minimum number of live samples required per chain
	MinProviders int `json:"min_providers"`
}

// CircuitBreaker guards the estimate path against anomalous oracle output.
// It tracks the last known good price per chain for fallback.
type CircuitBreaker struct {
	thresholds Thresholds

	state    State
	lastTrip time.Time

	// Duration before an auto-reset attempt
	resetDelay time.Duration

	// Consecutive successful checks needed in half-open state to close
	successThreshold int
	successCount     int

	// Last accepted aggregated price per chain
	lastGood map[uint64]*big.Int

	// Event callback for monitoring/alerting
	onTripCallback func(reason string)

	mu sync.RWMutex
}

// New creates a CircuitBreaker with the provided thresholds.
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
		lastGood:         make(map[uint64]*big.Int),
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker.
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful checks needed to close
// the circuit from half-open.
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback invoked whenever the circuit trips.
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Check evaluates an aggregated price and its underlying samples for a chain.
// If the circuit is open it blocks the operation; if the price violates the
// thresholds it trips the circuit. A nil error means the price was accepted
// and recorded as the chain's last good value.
func (cb *CircuitBreaker) Check(chainID uint64, price *big.Int, samples []model.PriceSample) error {
	cb.mu.RLock()
	state := cb.state
	lastTripTime := cb.lastTrip
	cb.mu.RUnlock()

	if state == StateOpen {
		if time.Since(lastTripTime) > cb.resetDelay {
			cb.transitionToHalfOpen()
		} else {
			return errors.New("circuit breaker open: gas price protection engaged")
		}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if reason := cb.evaluate(chainID, price, samples); reason != "" {
		cb.trip(reason)
		return fmt.Errorf("circuit breaker tripped: %s", reason)
	}

	// Accepted: record and advance half-open recovery if applicable
	cb.lastGood[chainID] = new(big.Int).Set(price)

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed after successful recovery checks")
		}
	}

	return nil
}

// evaluate returns a non-empty trip reason when the price violates thresholds.
// Caller holds the write lock.
func (cb *CircuitBreaker) evaluate(chainID uint64, price *big.Int, samples []model.PriceSample) string {
	if price == nil || price.Sign() <= 0 {
		return "aggregated gas price missing or non-positive"
	}

	if cb.thresholds.MinProviders > 0 && len(samples) < cb.thresholds.MinProviders {
		return fmt.Sprintf("only %d live providers for chain %d, need %d",
			len(samples), chainID, cb.thresholds.MinProviders)
	}

	if cb.thresholds.MaxPriceWei != nil && price.Cmp(cb.thresholds.MaxPriceWei) > 0 {
		return fmt.Sprintf("gas price %s above absolute cap for chain %d", price.String(), chainID)
	}

	if cb.thresholds.MaxPriceJump > 0 {
		if last, ok := cb.lastGood[chainID]; ok && last.Sign() > 0 {
			ratio, _ := new(big.Float).Quo(
				new(big.Float).SetInt(price),
				new(big.Float).SetInt(last),
			).Float64()
			if ratio > cb.thresholds.MaxPriceJump {
				return fmt.Sprintf("gas price jumped %.1fx on chain %d", ratio, chainID)
			}
		}
	}

	return ""
}

// trip opens the circuit. Caller holds the write lock.
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = time.Now()
	cb.successCount = 0

	logrus.Warnf("Circuit breaker tripped: %s", reason)
	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason)
	}
}

// transitionToHalfOpen moves the breaker into the recovery-testing state.
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open, testing recovery")
	}
}

// GetState returns the current state of the circuit breaker.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastGoodPrice returns the last accepted aggregated price for a chain, or
// nil if none was recorded yet.
func (cb *CircuitBreaker) LastGoodPrice(chainID uint64) *big.Int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if price, ok := cb.lastGood[chainID]; ok {
		return new(big.Int).Set(price)
	}
	return nil
}

// Reset forces the circuit back to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.successCount = 0
	logrus.Info("Circuit breaker manually reset")
}
