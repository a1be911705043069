package aggregate

import (
	"math/big"
	"testing"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

func sample(provider string, price int64, weight float64) model.PriceSample {
	return model.PriceSample{
		Provider: provider,
		ChainID:  1,
		PriceWei: big.NewInt(price),
		Weight:   weight,
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		samples  []model.PriceSample
		expected *big.Int
	}{
		{
			name:     "single sample",
			samples:  []model.PriceSample{sample("a", 100, 1)},
			expected: big.NewInt(100),
		},
		{
			name: "odd count",
			samples: []model.PriceSample{
				sample("a", 300, 1),
				sample("b", 100, 1),
				sample("c", 200, 1),
			},
			expected: big.NewInt(200),
		},
		{
			name: "even count averages middle pair",
			samples: []model.PriceSample{
				sample("a", 100, 1),
				sample("b", 200, 1),
				sample("c", 300, 1),
				sample("d", 400, 1),
			},
			expected: big.NewInt(250),
		},
		{
			name: "outlier ignored by median",
			samples: []model.PriceSample{
				sample("a", 100, 1),
				sample("b", 110, 1),
				sample("c", 1_000_000, 1),
			},
			expected: big.NewInt(110),
		},
		{
			name: "nil and zero prices skipped",
			samples: []model.PriceSample{
				{Provider: "a", ChainID: 1},
				sample("b", 0, 1),
				sample("c", 42, 1),
			},
			expected: big.NewInt(42),
		},
		{
			name:     "empty input",
			samples:  nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Median(tt.samples)
			if tt.expected == nil {
				if got != nil {
					t.Errorf("Median() = %v, want nil", got)
				}
				return
			}
			if got == nil || got.Cmp(tt.expected) != 0 {
				t.Errorf("Median() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWeighted(t *testing.T) {
	tests := []struct {
		name     string
		samples  []model.PriceSample
		expected *big.Int
	}{
		{
			name:     "single sample",
			samples:  []model.PriceSample{sample("a", 100, 1)},
			expected: big.NewInt(100),
		},
		{
			name: "weights shift the average",
			samples: []model.PriceSample{
				sample("a", 100, 3),
				sample("b", 200, 1),
			},
			expected: big.NewInt(125), // (100*3 + 200*1) / 4
		},
		{
			name: "zero weight counted as unit",
			samples: []model.PriceSample{
				sample("a", 100, 0),
				sample("b", 300, 1),
			},
			expected: big.NewInt(200),
		},
		{
			name:     "empty input",
			samples:  nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Weighted(tt.samples)
			if tt.expected == nil {
				if got != nil {
					t.Errorf("Weighted() = %v, want nil", got)
				}
				return
			}
			if got == nil || got.Cmp(tt.expected) != 0 {
				t.Errorf("Weighted() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrimmedMean(t *testing.T) {
	samples := []model.PriceSample{
		sample("a", 1, 1), // trimmed low
		sample("b", 100, 1),
		sample("c", 110, 1),
		sample("d", 120, 1),
		sample("e", 100, 1),
		sample("f", 110, 1),
		sample("g", 120, 1),
		sample("h", 100, 1),
		sample("i", 110, 1),
		sample("j", 1_000_000, 1), // trimmed high
	}

	got := TrimmedMean(samples, 0.1)
	expected := big.NewInt(108) // mean of the middle eight, integer division
	if got == nil || got.Cmp(expected) != 0 {
		t.Errorf("TrimmedMean() = %v, want %v", got, expected)
	}
}

func TestTrimmedMeanSmallSet(t *testing.T) {
	// Trimming that would drop everything falls back to the plain mean
	samples := []model.PriceSample{
		sample("a", 100, 1),
		sample("b", 200, 1),
	}

	got := TrimmedMean(samples, 0.5)
	if got == nil || got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("TrimmedMean() = %v, want 150", got)
	}
}
