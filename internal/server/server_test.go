package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfront/internal/config"
	"shopfront/internal/geo"
	"shopfront/internal/inventory"
	"shopfront/internal/middleware"
	"shopfront/internal/page"
)

type staticFetcher struct{}

func (staticFetcher) Fetch(ctx context.Context, productID string) (*inventory.Record, error) {
	return &inventory.Record{ProductID: productID, Name: "Goldilocks", AvailableRegions: []string{"unitedkingdom"}}, nil
}

type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, clientIP string) geo.Location {
	return geo.Location{Region: "germany", Resolved: true}
}

func newRouter(limiter *middleware.ClientRateLimiter) http.Handler {
	pipeline := page.NewPipeline(staticFetcher{}, staticResolver{})
	assembler := page.NewAssembler(pipeline, config.PageConfig{FeaturedProductID: "strain-1", Title: "Home"}, page.WithAudit(nil))
	return NewRouter(Deps{Pages: page.NewHandler(assembler), Limiter: limiter})
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "198.51.100.4:5555"
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h := newRouter(nil)

	cases := map[string]struct {
		target string
		status int
		ctype  string
	}{
		"home":    {target: "/", status: http.StatusOK, ctype: "text/html; charset=utf-8"},
		"api":     {target: "/api/page", status: http.StatusOK, ctype: "application/json"},
		"health":  {target: "/healthz", status: http.StatusOK},
		"metrics": {target: "/metrics", status: http.StatusOK},
		"unknown": {target: "/order-details", status: http.StatusNotFound, ctype: "application/json"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			rec := get(h, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			if tt.ctype != "" {
				assert.Equal(t, tt.ctype, rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/page", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitOnlyAppliesToPages(t *testing.T) {
	h := newRouter(middleware.NewClientRateLimiter(0.001, 1))

	assert.Equal(t, http.StatusOK, get(h, "/api/page").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/api/page").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/").Code)
	assert.Equal(t, http.StatusOK, get(h, "/healthz").Code)
}

func TestRateLimitKeysOnPeerWithoutTrustedProxies(t *testing.T) {
	h := newRouter(middleware.NewClientRateLimiter(0.001, 1))

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/page", nil)
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{200, 429, 429, 429, 429}, codes)
}

func TestAppServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := NewApp(ln.Addr().String(), newRouter(nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/page")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, true, body["success"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, int64(1), app.TotalRequests())
}
