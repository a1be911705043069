// Package main is the entry point for the Bridge Fee Estimator, a small
// HTTP service that quotes the recommended network fee for bridging a token
// between two chains.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/bridge-fee-estimator/internal/circuitbreaker"
	"github.com/yourorg/bridge-fee-estimator/internal/config"
	"github.com/yourorg/bridge-fee-estimator/internal/enterprise"
	"github.com/yourorg/bridge-fee-estimator/internal/fee"
	"github.com/yourorg/bridge-fee-estimator/internal/model"
	"github.com/yourorg/bridge-fee-estimator/internal/oracle"
	"github.com/yourorg/bridge-fee-estimator/internal/otel"
	"github.com/yourorg/bridge-fee-estimator/internal/registry"
	"github.com/yourorg/bridge-fee-estimator/internal/signer"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server represents the estimator service instance
type Server struct {
	// Configuration for the server
	config config.Config

	// Core fee recommender and its collaborators
	recommender *fee.Recommender
	oracle      *oracle.MultiProviderOracle
	identity    *signer.Identity

	// Known chains and tokens, keyed for request resolution
	chains map[uint64]model.Chain
	tokens map[string]model.Token

	// Circuit breaker for gas price anomalies
	breaker *circuitbreaker.CircuitBreaker

	// Quote exporter for downstream audit
	exporter *enterprise.QuoteExporter

	// Metrics registry
	metrics *serverMetrics

	// Rate limiter for the estimate endpoint
	rateLimit *rate.Limiter

	// HTTP server instance
	server *http.Server
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	estimateErrors  *prometheus.CounterVec
	breakerState    prometheus.Gauge
	quotesIssued    prometheus.Counter
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_fee_requests_total",
				Help: "Total number of estimate requests processed",
			},
			[]string{"status", "method"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_fee_request_duration_seconds",
				Help:    "Estimate request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		estimateErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_fee_estimate_errors_total",
				Help: "Total number of estimate failures by kind",
			},
			[]string{"kind"},
		),
		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_fee_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		quotesIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_fee_quotes_issued_total",
				Help: "Total number of non-zero fee quotes issued",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.estimateErrors,
		m.breakerState,
		m.quotesIssued,
	)

	return m
}

// main is the entry point for the application
func main() {
	setupLogging()

	cfg := config.Load()

	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	server, err := NewServer(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize server: %v", err)
	}
	server.Start()
}

// NewServer wires the recommender, its collaborators, and the HTTP surface
// from configuration.
func NewServer(cfg config.Config) (*Server, error) {
	if len(cfg.Chains) == 0 {
		return nil, errors.New("no chains configured, set CHAINS")
	}

	// Signing identity: persistent from SIGNER_KEY, else ephemeral
	var identity *signer.Identity
	var err error
	if cfg.SignerKey != "" {
		identity, err = signer.FromHex(cfg.SignerKey)
	} else {
		identity, err = signer.NewIdentity()
	}
	if err != nil {
		return nil, err
	}

	// Gas price oracle: one node provider per chain, plus the chain's gas
	// station when configured
	priceOracle := oracle.NewMultiProviderOracle().WithMode(cfg.AggregationMode)
	bridgeRegistry, err := registry.NewBridgeRegistry()
	if err != nil {
		return nil, err
	}

	chains := make(map[uint64]model.Chain, len(cfg.Chains))
	for _, entry := range cfg.Chains {
		if !entry.Enabled {
			continue
		}

		node, err := oracle.NewNodeProvider(entry.Name+"-node", entry.RPCEndpoint, entry.Weight)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", entry.ID, err)
		}
		priceOracle.RegisterProvider(entry.ID, node)

		if entry.GasStationEndpoint != "" {
			station := oracle.NewGasStationProvider(entry.Name+"-station", entry.GasStationEndpoint, entry.GasStationKey, entry.Weight)
			priceOracle.RegisterProvider(entry.ID, station)
		}

		chain := entry.Chain()
		if err := bridgeRegistry.RegisterChain(entry.ID, entry.RPCEndpoint, chain.BridgeAddress); err != nil {
			return nil, err
		}
		chains[entry.ID] = chain
	}
	if len(chains) == 0 {
		return nil, errors.New("no enabled chains configured")
	}

	tokens := make(map[string]model.Token, len(cfg.Tokens))
	for _, entry := range cfg.Tokens {
		tokens[entry.Symbol] = entry.Token()
	}

	// Circuit breaker around the oracle output
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.EnableCircuitBreaker {
		breaker = circuitbreaker.New(circuitbreaker.Thresholds{
			MaxPriceWei:  gweiToWei(cfg.MaxGasPriceGwei),
			MaxPriceJump: cfg.MaxPriceJump,
			MinProviders: cfg.MinProviderCount,
		}).WithResetDelay(cfg.CircuitResetDelay).
			WithTripCallback(func(reason string) {
				logrus.Warnf("Circuit breaker tripped: %s", reason)
			})
	}

	recommender := fee.NewRecommender(&guardedOracle{oracle: priceOracle, breaker: breaker}, bridgeRegistry).
		WithGasLimits(gasLimitsFromConfig(cfg))

	exporter, err := enterprise.NewQuoteExporter(enterprise.ExporterConfig{
		Enabled:        cfg.WebhookEnabled,
		BatchSize:      cfg.ExportBatchSize,
		ExportInterval: cfg.ExportInterval,
		WebhookURL:     cfg.WebhookURL,
		WebhookAPIKey:  cfg.WebhookAPIKey,
	}, identity)
	if err != nil {
		return nil, err
	}

	var metricsRegistry *serverMetrics
	if cfg.EnableMetrics {
		metricsRegistry = registerMetrics()
	}

	server := &Server{
		config:      cfg,
		recommender: recommender,
		oracle:      priceOracle,
		identity:    identity,
		chains:      chains,
		tokens:      tokens,
		breaker:     breaker,
		exporter:    exporter,
		metrics:     metricsRegistry,
		rateLimit:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}

	logrus.WithFields(logrus.Fields{
		"port":             cfg.Port,
		"chains":           len(chains),
		"tokens":           len(tokens),
		"aggregation_mode": cfg.AggregationMode,
		"circuit_breaker":  cfg.EnableCircuitBreaker,
		"metrics":          cfg.EnableMetrics,
		"signer":           identity.Address().Hex(),
	}).Info("Server initialized")

	return server, nil
}

// Start begins the HTTP server and sets up graceful shutdown
func (s *Server) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/estimate", s.handleEstimate)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit", s.handleCircuitStatus)

	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}
	s.exporter.Close()

	logrus.Info("Server stopped")
}

// EstimateRequest is the JSON body accepted by POST /estimate. The token can
// be referenced by configured symbol or supplied inline as a descriptor.
type EstimateRequest struct {
	SourceChainID uint64             `json:"source_chain_id"`
	DestChainID   uint64             `json:"dest_chain_id"`
	Method        string             `json:"method"`
	Token         string             `json:"token,omitempty"`
	TokenInline   *config.TokenEntry `json:"token_descriptor,omitempty"`
}

// EstimateResponse is the JSON body returned by POST /estimate.
type EstimateResponse struct {
	Fee           string                 `json:"fee"`
	Currency      string                 `json:"currency,omitempty"`
	Method        string                 `json:"method,omitempty"`
	SourceChainID uint64                 `json:"source_chain_id"`
	DestChainID   uint64                 `json:"dest_chain_id"`
	Token         string                 `json:"token,omitempty"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// handleEstimate processes a fee estimate request
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.rateLimit.Allow() {
		s.errorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	var request EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues("started", request.Method).Inc()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	ctx, span := otel.Tracer().Start(ctx, "estimate")
	defer span.End()

	// Resolve the five estimate inputs. Anything unresolved stays nil and
	// yields the zero quote, per the recommender's precondition gate.
	src := s.resolveChain(request.SourceChainID)
	dst := s.resolveChain(request.DestChainID)
	method := s.resolveMethod(request.Method)
	token := s.resolveToken(request)

	feeStr, err := s.recommender.Estimate(ctx, src, dst, method, token, s.identity)
	if err != nil {
		otel.RecordError(ctx, err)
		s.countEstimateError(err)
		s.errorResponse(w, http.StatusBadGateway, fmt.Sprintf("Error computing estimate: %v", err))
		return
	}

	response := EstimateResponse{
		Fee:           feeStr,
		Method:        string(method),
		SourceChainID: request.SourceChainID,
		DestChainID:   request.DestChainID,
		Meta: map[string]interface{}{
			"latency_ms": time.Since(start).Milliseconds(),
			"timestamp":  time.Now().Unix(),
		},
	}
	if dst != nil {
		response.Currency = dst.NativeSymbol
	}
	if token != nil {
		response.Token = token.Symbol

		if feeStr != fee.Zero {
			quote := model.FeeQuote{
				SourceChainID: request.SourceChainID,
				DestChainID:   request.DestChainID,
				Method:        method,
				TokenSymbol:   token.Symbol,
				Fee:           feeStr,
				IssuedAt:      time.Now().Unix(),
			}
			s.exporter.AddQuote(quote)
			if s.metrics != nil {
				s.metrics.quotesIssued.Inc()
			}
		}
	}

	if s.metrics != nil {
		s.metrics.requestDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
		s.metrics.requestCounter.WithLabelValues("success", request.Method).Inc()
		if s.breaker != nil {
			s.metrics.breakerState.Set(float64(s.breaker.GetState()))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// countEstimateError classifies a failure for metrics
func (s *Server) countEstimateError(err error) {
	if s.metrics == nil {
		return
	}

	kind := "internal"
	var netErr *oracle.NetworkError
	var callErr *registry.ContractCallError
	switch {
	case errors.As(err, &netErr):
		kind = "network"
	case errors.As(err, &callErr):
		kind = "contract"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = "timeout"
	}
	s.metrics.estimateErrors.WithLabelValues(kind).Inc()
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	logrus.Warn(errorMsg)

	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues("error", "").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(EstimateResponse{Fee: fee.Zero, Error: errorMsg})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.Error(w, "Metrics disabled", http.StatusServiceUnavailable)
		return
	}

	promhttp.Handler().ServeHTTP(w, r)
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(startTime).String(),
		"version": "1.0.0",
		"signer":  s.identity.Address().Hex(),
		"chains":  len(s.chains),
		"tokens":  len(s.tokens),
		"configuration": map[string]interface{}{
			"aggregation_mode": s.config.AggregationMode,
			"circuit_breaker":  s.config.EnableCircuitBreaker,
			"metrics":          s.config.EnableMetrics,
		},
	}

	if s.breaker != nil {
		status["circuit_state"] = s.breaker.GetState().String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleCircuitStatus allows viewing and controlling the circuit breaker
func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		http.Error(w, "Circuit breaker not enabled", http.StatusServiceUnavailable)
		return
	}

	response := map[string]interface{}{
		"state": s.breaker.GetState().String(),
	}

	if r.Method == http.MethodPost {
		if r.URL.Query().Get("action") == "reset" {
			s.breaker.Reset()
			response["state"] = s.breaker.GetState().String()
			response["message"] = "Circuit breaker reset"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
