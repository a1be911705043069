package circuitbreaker

import (
	"math/big"
	"testing"
	"time"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func samples(n int) []model.PriceSample {
	out := make([]model.PriceSample, n)
	for i := range out {
		out[i] = model.NewPriceSample("p", 1, gwei(30))
	}
	return out
}

func TestCheckAcceptsNormalPrice(t *testing.T) {
	cb := New(Thresholds{MaxPriceWei: gwei(10_000), MaxPriceJump: 20.0, MinProviders: 1})

	if err := cb.Check(1, gwei(30), samples(2)); err != nil {
		t.Fatalf("Check() unexpected error: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.GetState())
	}
	if got := cb.LastGoodPrice(1); got == nil || got.Cmp(gwei(30)) != 0 {
		t.Errorf("LastGoodPrice() = %v, want 30 gwei", got)
	}
}

func TestCheckTripsOnAbsoluteCap(t *testing.T) {
	tripped := ""
	cb := New(Thresholds{MaxPriceWei: gwei(10_000)}).
		WithTripCallback(func(reason string) { tripped = reason })

	if err := cb.Check(1, gwei(50_000), samples(2)); err == nil {
		t.Fatal("Check() expected error for price above cap")
	}
	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want open", cb.GetState())
	}

	// Callback fires asynchronously
	time.Sleep(20 * time.Millisecond)
	if tripped == "" {
		t.Error("trip callback was not invoked")
	}
}

func TestCheckTripsOnPriceJump(t *testing.T) {
	cb := New(Thresholds{MaxPriceJump: 20.0})

	if err := cb.Check(1, gwei(30), samples(2)); err != nil {
		t.Fatalf("baseline Check() failed: %v", err)
	}
	if err := cb.Check(1, gwei(30*25), samples(2)); err == nil {
		t.Fatal("Check() expected error for 25x jump")
	}
}

func TestCheckTripsOnTooFewProviders(t *testing.T) {
	cb := New(Thresholds{MinProviders: 3})

	if err := cb.Check(1, gwei(30), samples(1)); err == nil {
		t.Fatal("Check() expected error with one provider")
	}
}

func TestOpenCircuitBlocksUntilResetDelay(t *testing.T) {
	cb := New(Thresholds{MaxPriceWei: gwei(100)}).
		WithResetDelay(50 * time.Millisecond).
		WithSuccessThreshold(2)

	if err := cb.Check(1, gwei(500), samples(2)); err == nil {
		t.Fatal("expected trip")
	}
	if err := cb.Check(1, gwei(30), samples(2)); err == nil {
		t.Fatal("open circuit must block even good prices")
	}

	time.Sleep(60 * time.Millisecond)

	// First good check after the delay moves to half-open
	if err := cb.Check(1, gwei(30), samples(2)); err != nil {
		t.Fatalf("half-open Check() failed: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("state = %v, want half-open", cb.GetState())
	}

	// Second consecutive success closes the circuit
	if err := cb.Check(1, gwei(31), samples(2)); err != nil {
		t.Fatalf("closing Check() failed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.GetState())
	}
}

func TestReset(t *testing.T) {
	cb := New(Thresholds{MaxPriceWei: gwei(100)})

	_ = cb.Check(1, gwei(500), samples(2))
	if cb.GetState() != StateOpen {
		t.Fatal("expected open state before reset")
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("state after Reset() = %v, want closed", cb.GetState())
	}
	if err := cb.Check(1, gwei(30), samples(2)); err != nil {
		t.Errorf("Check() after reset failed: %v", err)
	}
}

func TestLastGoodPriceIsolatedPerChain(t *testing.T) {
	cb := New(Thresholds{})

	_ = cb.Check(1, gwei(30), samples(1))
	_ = cb.Check(137, gwei(200), samples(1))

	if got := cb.LastGoodPrice(1); got.Cmp(gwei(30)) != 0 {
		t.Errorf("chain 1 last good = %v", got)
	}
	if got := cb.LastGoodPrice(137); got.Cmp(gwei(200)) != 0 {
		t.Errorf("chain 137 last good = %v", got)
	}
	if got := cb.LastGoodPrice(42); got != nil {
		t.Errorf("unknown chain last good = %v, want nil", got)
	}
}
