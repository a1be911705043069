// Package config provides configuration loading and management for the application.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// ChainEntry describes one chain the estimator serves, as loaded from the
// CHAINS environment variable.
type ChainEntry struct {
	ID                 uint64  `json:"id"`
	Name               string  `json:"name"`
	Enabled            bool    `json:"enabled"`
	RPCEndpoint        string  `json:"rpc_endpoint"`
	GasStationEndpoint string  `json:"gas_station_endpoint,omitempty"`
	GasStationKey      string  `json:"gas_station_key,omitempty"`
	BridgeAddress      string  `json:"bridge_address"`
	NativeSymbol       string  `json:"native_symbol"`
	NativeDecimals     uint8   `json:"native_decimals"`
	Weight             float64 `json:"weight"`
}

// Chain converts the entry into the core chain descriptor.
func (e ChainEntry) Chain() model.Chain {
	decimals := e.NativeDecimals
	if decimals == 0 {
		decimals = 18
	}
	return model.Chain{
		ID:             e.ID,
		Name:           e.Name,
		NativeSymbol:   e.NativeSymbol,
		NativeDecimals: decimals,
		BridgeAddress:  common.HexToAddress(e.BridgeAddress),
	}
}

// TokenEntry describes a token known to the estimator, as loaded from the
// TOKENS environment variable.
type TokenEntry struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Native   bool   `json:"native,omitempty"`

	// Addresses maps chain ID (as a decimal string, JSON keys) to the
	// token's contract address on that chain
	Addresses map[string]string `json:"addresses,omitempty"`
}

// Token converts the entry into the core token descriptor.
func (e TokenEntry) Token() model.Token {
	if e.Native {
		return model.NativeToken(e.Name, e.Symbol, e.Decimals)
	}

	addresses := make(map[uint64]common.Address, len(e.Addresses))
	for rawID, addr := range e.Addresses {
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			logrus.Warnf("Token %s: invalid chain id %q, skipping", e.Symbol, rawID)
			continue
		}
		addresses[id] = common.HexToAddress(addr)
	}
	return model.FungibleToken(e.Name, e.Symbol, e.Decimals, addresses)
}

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Chains the estimator serves
	Chains []ChainEntry

	// Tokens known to the estimator
	Tokens []TokenEntry

	// Hex-encoded signer private key; empty generates an ephemeral identity
	SignerKey string

	// Aggregation mode for gas-price samples (median, weighted, trimmed)
	AggregationMode string

	// Gas-limit table overrides, zero keeps the default
	EthGasLimit              uint64
	Erc20NotDeployedGasLimit uint64
	Erc20DeployedGasLimit    uint64

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Timeouts and circuit breaker settings
	RequestTimeout    time.Duration
	MaxGasPriceGwei   int64
	MaxPriceJump      float64
	MinProviderCount  int
	CircuitResetDelay time.Duration

	// Feature toggles
	EnableCircuitBreaker bool
	EnableMetrics        bool

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Quote export
	WebhookEnabled  bool
	WebhookURL      string
	WebhookAPIKey   string
	ExportInterval  time.Duration
	ExportBatchSize int
}

// Load creates a new Config from environment variables
func Load() Config {
	var chains []ChainEntry
	if raw := os.Getenv("CHAINS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &chains); err != nil {
			logrus.Warnf("Invalid CHAINS value, ignoring: %v", err)
		}
	}

	var tokens []TokenEntry
	if raw := os.Getenv("TOKENS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
			logrus.Warnf("Invalid TOKENS value, ignoring: %v", err)
		}
	}

	return Config{
		Port:                     GetEnvOrDefault("PORT", "8080"),
		Chains:                   chains,
		Tokens:                   tokens,
		SignerKey:                os.Getenv("SIGNER_KEY"),
		AggregationMode:          strings.ToLower(GetEnvOrDefault("AGGREGATION_MODE", "median")),
		EthGasLimit:              GetEnvAsUint64("ETH_GAS_LIMIT", 0),
		Erc20NotDeployedGasLimit: GetEnvAsUint64("ERC20_NOT_DEPLOYED_GAS_LIMIT", 0),
		Erc20DeployedGasLimit:    GetEnvAsUint64("ERC20_DEPLOYED_GAS_LIMIT", 0),
		OtelEndpoint:             GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RequestTimeout:           GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		MaxGasPriceGwei:          int64(GetEnvAsInt("MAX_GAS_PRICE_GWEI", 10_000)),
		MaxPriceJump:             GetEnvAsFloat("MAX_PRICE_JUMP", 20.0),
		MinProviderCount:         GetEnvAsInt("MIN_PROVIDER_COUNT", 1),
		CircuitResetDelay:        GetEnvAsDuration("CIRCUIT_RESET_DELAY", 5*time.Minute),
		EnableCircuitBreaker:     GetEnvAsBool("ENABLE_CIRCUIT_BREAKER", true),
		EnableMetrics:            GetEnvAsBool("ENABLE_METRICS", true),
		RateLimitRPS:             GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst:           GetEnvAsInt("RATE_LIMIT_BURST", 20),
		WebhookEnabled:           GetEnvAsBool("WEBHOOK_ENABLED", false),
		WebhookURL:               os.Getenv("WEBHOOK_URL"),
		WebhookAPIKey:            os.Getenv("WEBHOOK_API_KEY"),
		ExportInterval:           GetEnvAsDuration("QUOTE_EXPORT_INTERVAL", time.Minute),
		ExportBatchSize:          GetEnvAsInt("QUOTE_EXPORT_BATCH_SIZE", 100),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsUint64 retrieves an environment variable as a uint64 with a default value
func GetEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
