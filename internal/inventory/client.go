package inventory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"shopfront/internal/config"
	"shopfront/internal/logger"
	"shopfront/internal/metrics"
	"shopfront/internal/region"
	"shopfront/internal/security"
)

const maxBodyBytes = 1 << 20

// Client fetches product availability from the partner inventory API.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	signer     security.Signer
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg config.InventoryConfig, signer security.Signer, opts ...Option) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		signer:  signer,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch makes a single signed request for productID. Every failure is a
// *FetchError; there are no retries.
func (c *Client) Fetch(ctx context.Context, productID string) (*Record, error) {
	if productID == "" {
		return nil, &FetchError{Kind: KindInvalidInput, Err: errors.New("product id is empty")}
	}

	payload := requestPayload{ProductID: productID}
	signature, err := c.signer.Sign(payload)
	if err != nil {
		return nil, &FetchError{ProductID: productID, Kind: KindSign, Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{ProductID: productID, Kind: KindTransport, Err: err}
	}
	req.Header.Set("x-auth-apikey", c.apiKey)
	req.Header.Set("x-auth-signature", signature)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream(metrics.UpstreamInventory, string(KindTransport), time.Since(start))
		return nil, &FetchError{ProductID: productID, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordUpstream(metrics.UpstreamInventory, string(KindTransport), elapsed)
		return nil, &FetchError{ProductID: productID, Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordUpstream(metrics.UpstreamInventory, metrics.StatusOutcome(resp.StatusCode), elapsed)
		logger.L().Error("partner inventory API returned error status",
			zap.String("product_id", productID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)),
		)
		return nil, &FetchError{ProductID: productID, Kind: KindStatus, StatusCode: resp.StatusCode}
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		metrics.RecordUpstream(metrics.UpstreamInventory, string(KindParse), elapsed)
		return nil, &FetchError{ProductID: productID, Kind: KindParse, StatusCode: resp.StatusCode, Err: err}
	}
	if envelope.Data == nil {
		metrics.RecordUpstream(metrics.UpstreamInventory, string(KindParse), elapsed)
		return nil, &FetchError{ProductID: productID, Kind: KindParse, StatusCode: resp.StatusCode, Err: errors.New("response has no data object")}
	}

	metrics.RecordUpstream(metrics.UpstreamInventory, "ok", elapsed)
	record := envelope.Data.toRecord(productID)

	logger.L().Debug("fetched inventory record",
		zap.String("product_id", productID),
		zap.Strings("available_regions", record.AvailableRegions),
		zap.Duration("elapsed", elapsed),
	)
	return record, nil
}

func (p *apiProduct) toRecord(productID string) *Record {
	return &Record{
		ProductID:        productID,
		Name:             p.Name,
		ImageURL:         p.ImageURL,
		Feelings:         p.Feelings,
		HelpsWith:        p.HelpsWith,
		FlavourNotes:     p.Flavour,
		AvailableRegions: availableRegions(p.StrainLocations),
	}
}

// availableRegions keeps upstream order, drops unavailable entries and
// blank countries, and keeps only the first occurrence of each token.
func availableRegions(locs []apiLocation) []string {
	regions := make([]string, 0, len(locs))
	seen := make(map[string]struct{}, len(locs))
	for _, loc := range locs {
		if !loc.IsAvailable {
			continue
		}
		token := region.Normalize(loc.Location.Country)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		regions = append(regions, token)
	}
	return regions
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
