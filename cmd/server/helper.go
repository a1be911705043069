package main

import (
	"context"
	"math/big"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/circuitbreaker"
	"github.com/yourorg/bridge-fee-estimator/internal/config"
	"github.com/yourorg/bridge-fee-estimator/internal/fee"
	"github.com/yourorg/bridge-fee-estimator/internal/model"
	"github.com/yourorg/bridge-fee-estimator/internal/oracle"
)

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// guardedOracle runs every oracle read through the circuit breaker and falls
// back to the last good price for the chain when a fresh one is rejected.
type guardedOracle struct {
	oracle  *oracle.MultiProviderOracle
	breaker *circuitbreaker.CircuitBreaker
}

// GasPrice implements fee.Oracle.
func (g *guardedOracle) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	price, samples, err := g.oracle.Observe(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if g.breaker == nil {
		return price, nil
	}

	if err := g.breaker.Check(chainID, price, samples); err != nil {
		if last := g.breaker.LastGoodPrice(chainID); last != nil {
			logrus.Warnf("Using last good gas price for chain %d: %v", chainID, err)
			return last, nil
		}
		return nil, err
	}
	return price, nil
}

// gasLimitsFromConfig applies env overrides on top of the default table
func gasLimitsFromConfig(cfg config.Config) fee.GasLimits {
	limits := fee.DefaultGasLimits()
	if cfg.EthGasLimit > 0 {
		limits.Eth = cfg.EthGasLimit
	}
	if cfg.Erc20NotDeployedGasLimit > 0 {
		limits.Erc20NotDeployed = cfg.Erc20NotDeployedGasLimit
	}
	if cfg.Erc20DeployedGasLimit > 0 {
		limits.Erc20Deployed = cfg.Erc20DeployedGasLimit
	}
	return limits
}

// gweiToWei converts a whole gwei amount into wei
func gweiToWei(gwei int64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(1_000_000_000))
}

// resolveChain returns the configured chain for an ID, or nil when unknown.
// Unknown chains are treated as an absent input, not an error.
func (s *Server) resolveChain(chainID uint64) *model.Chain {
	if chain, ok := s.chains[chainID]; ok {
		return &chain
	}
	return nil
}

// resolveMethod parses the requested fee method, or returns the absent value.
func (s *Server) resolveMethod(raw string) model.FeeMethod {
	if raw == "" {
		return ""
	}
	method, err := model.ParseFeeMethod(raw)
	if err != nil {
		logrus.Debugf("Unknown fee method %q, treating as absent", raw)
		return ""
	}
	return method
}

// resolveToken picks the inline descriptor when present, else the configured
// token for the symbol. Returns nil when neither resolves.
func (s *Server) resolveToken(request EstimateRequest) *model.Token {
	if request.TokenInline != nil {
		token := request.TokenInline.Token()
		return &token
	}
	if token, ok := s.tokens[request.Token]; ok {
		return &token
	}
	return nil
}
