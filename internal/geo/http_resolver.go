package geo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopfront/internal/config"
	"shopfront/internal/region"
)

const (
	ipPlaceholder = "{ip}"
	maxGeoBody    = 64 << 10
)

type geoResponse struct {
	Country string `json:"country"`
}

// HTTPResolver queries a location endpoint whose JSON body carries a
// "country" field. An "{ip}" placeholder in the endpoint URL is replaced with
// the visitor IP; without it the URL is requested as configured.
type HTTPResolver struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPResolver(cfg config.GeoConfig, opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		endpoint: cfg.EndpointURL,
		timeout:  cfg.Timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type HTTPOption func(*HTTPResolver)

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(r *HTTPResolver) { r.httpClient = hc }
}

func (r *HTTPResolver) Resolve(ctx context.Context, clientIP string) Location {
	start := time.Now()
	token, err := r.lookup(ctx, clientIP)
	return finish(ctx, "http", start, token, err)
}

func (r *HTTPResolver) requestURL(clientIP string) string {
	if !strings.Contains(r.endpoint, ipPlaceholder) {
		return r.endpoint
	}
	return strings.ReplaceAll(r.endpoint, ipPlaceholder, url.QueryEscape(clientIP))
}

func (r *HTTPResolver) lookup(ctx context.Context, clientIP string) (string, *ResolutionError) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.requestURL(clientIP), nil)
	if err != nil {
		return "", &ResolutionError{Stage: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &ResolutionError{Stage: "transport", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxGeoBody))
		return "", &ResolutionError{Stage: "status", StatusCode: resp.StatusCode}
	}

	var body geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGeoBody)).Decode(&body); err != nil {
		return "", &ResolutionError{Stage: "parse", StatusCode: resp.StatusCode, Err: err}
	}

	token := region.Normalize(body.Country)
	if token == "" {
		return "", &ResolutionError{Stage: "empty", StatusCode: resp.StatusCode, Err: errors.New("response has no country")}
	}
	return token, nil
}
