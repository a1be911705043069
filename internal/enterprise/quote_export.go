// Package enterprise provides advanced integration features that sit outside
// the core estimate path.
package enterprise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
	"github.com/yourorg/bridge-fee-estimator/internal/signer"
)

// ExporterConfig holds configuration for quote exporting
type ExporterConfig struct {
	Enabled        bool          `json:"enabled"`
	BatchSize      int           `json:"batch_size"`
	ExportInterval time.Duration `json:"export_interval"`
	WebhookURL     string        `json:"webhook_url"`
	WebhookAPIKey  string        `json:"webhook_api_key,omitempty"`
}

// QuoteExporter batches issued fee quotes and ships them to a webhook so
// downstream systems can audit what the estimator handed out. Quotes are
// signed when an identity is provided.
type QuoteExporter struct {
	config     ExporterConfig
	identity   *signer.Identity
	httpClient *http.Client

	mutex      sync.Mutex
	batch      []signer.SignedQuote
	lastExport time.Time

	exportCtx    context.Context
	exportCancel context.CancelFunc
}

// NewQuoteExporter creates a quote exporter. A disabled config yields an
// exporter whose methods are no-ops.
func NewQuoteExporter(cfg ExporterConfig, identity *signer.Identity) (*QuoteExporter, error) {
	if !cfg.Enabled {
		return &QuoteExporter{config: cfg}, nil
	}
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("quote exporter enabled without a webhook URL")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ExportInterval <= 0 {
		cfg.ExportInterval = time.Minute
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil

	exporter := &QuoteExporter{
		config:     cfg,
		identity:   identity,
		httpClient: retryClient.StandardClient(),
		batch:      make([]signer.SignedQuote, 0, cfg.BatchSize),
	}

	exporter.exportCtx, exporter.exportCancel = context.WithCancel(context.Background())
	go exporter.periodicExport()

	logrus.Info("Quote exporter initialized")
	return exporter, nil
}

// AddQuote appends a quote to the pending batch, flushing when full.
func (e *QuoteExporter) AddQuote(quote model.FeeQuote) {
	if !e.config.Enabled {
		return
	}

	entry := signer.SignedQuote{Quote: quote}
	if e.identity != nil {
		signed, err := e.identity.SignQuote(quote)
		if err != nil {
			logrus.Warnf("Failed to sign quote for export: %v", err)
		} else {
			entry = signed
		}
	}

	e.mutex.Lock()
	e.batch = append(e.batch, entry)
	full := len(e.batch) >= e.config.BatchSize
	e.mutex.Unlock()

	if full {
		e.export()
	}
}

// Close stops the background export loop and flushes the remaining batch.
func (e *QuoteExporter) Close() {
	if !e.config.Enabled {
		return
	}
	e.exportCancel()
	e.export()
}

// periodicExport flushes the batch on the configured interval.
func (e *QuoteExporter) periodicExport() {
	ticker := time.NewTicker(e.config.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.export()
		case <-e.exportCtx.Done():
			return
		}
	}
}

// export posts the pending batch to the webhook.
func (e *QuoteExporter) export() {
	e.mutex.Lock()
	if len(e.batch) == 0 {
		e.mutex.Unlock()
		return
	}
	pending := e.batch
	e.batch = make([]signer.SignedQuote, 0, e.config.BatchSize)
	e.lastExport = time.Now()
	e.mutex.Unlock()

	payload, err := json.Marshal(map[string]interface{}{
		"quotes":      pending,
		"exported_at": time.Now().Unix(),
	})
	if err != nil {
		logrus.Warnf("Failed to marshal quote batch: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, e.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		logrus.Warnf("Failed to build export request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.WebhookAPIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		logrus.Warnf("Quote export failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logrus.Warnf("Quote export rejected: status %d", resp.StatusCode)
		return
	}

	logrus.Debugf("Exported %d quotes", len(pending))
}
