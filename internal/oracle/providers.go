package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/bridge-fee-estimator/internal/model"
)

// suggester is the part of ethclient.Client the node provider needs.
type suggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// NodeProvider reads the gas price straight from a chain's JSON-RPC node.
type NodeProvider struct {
	name   string
	weight float64
	client suggester
}

// NewNodeProvider dials the given RPC endpoint. Dialing an HTTP endpoint is
// lazy; connection failures surface on the first fetch.
func NewNodeProvider(name, rpcURL string, weight float64) (*NodeProvider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", name, err)
	}

	return &NodeProvider{
		name:   name,
		weight: weight,
		client: client,
	}, nil
}

// Name identifies the provider.
func (p *NodeProvider) Name() string {
	return p.name
}

// Fetch queries eth_gasPrice on the node.
func (p *NodeProvider) Fetch(ctx context.Context) (model.PriceSample, error) {
	price, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("eth_gasPrice: %w", err)
	}

	logrus.Debugf("Node provider %s reported %s wei", p.name, price.String())

	sample := model.NewPriceSample(p.name, 0, price)
	sample.Weight = p.weight
	return sample, nil
}

// GasStationProvider reads the gas price from an HTTPS gas-station API that
// reports prices in gwei, e.g. {"standard": 30.5, "fast": 42.0}.
type GasStationProvider struct {
	name       string
	apiURL     string
	apiKey     string
	weight     float64
	httpClient *http.Client
}

// NewGasStationProvider creates a gas-station client with retry handling for
// transient transport errors.
func NewGasStationProvider(name, apiURL, apiKey string, weight float64) *GasStationProvider {
	return &GasStationProvider{
		name:       name,
		apiURL:     apiURL,
		apiKey:     apiKey,
		weight:     weight,
		httpClient: newRetryClient(),
	}
}

// Name identifies the provider.
func (p *GasStationProvider) Name() string {
	return p.name
}

// Fetch retrieves and converts the station's standard gwei price to wei.
func (p *GasStationProvider) Fetch(ctx context.Context) (model.PriceSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("error creating request: %w", err)
	}

	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("error fetching from %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.PriceSample{}, fmt.Errorf("%s API error: status %d, body: %s", p.name, resp.StatusCode, string(body))
	}

	var response struct {
		Standard float64 `json:"standard"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return model.PriceSample{}, fmt.Errorf("error decoding response: %w", err)
	}
	if response.Standard <= 0 {
		return model.PriceSample{}, fmt.Errorf("no usable price returned from %s", p.name)
	}

	sample := model.NewPriceSample(p.name, 0, gweiToWei(response.Standard))
	sample.Weight = p.weight
	return sample, nil
}

// gweiToWei converts a fractional gwei price into integer wei.
func gweiToWei(gwei float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9))
	out, _ := wei.Int(nil)
	return out
}

// newRetryClient creates an HTTP client with retry capabilities.
func newRetryClient() *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c.StandardClient()
}
