// test_helpers.go - end to end suite wiring the real pipeline against mock upstreams
package testing

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shopfront/internal/config"
	"shopfront/internal/data"
	"shopfront/internal/geo"
	"shopfront/internal/inventory"
	"shopfront/internal/middleware"
	"shopfront/internal/page"
	"shopfront/internal/security"
	"shopfront/internal/server"
)

const FeaturedStrainID = "strain-goldilocks"

// TestConfig holds configuration for test runs
type TestConfig struct {
	DBPath           string
	TestDataDir      string
	InventoryTimeout time.Duration
	GeoTimeout       time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	TrustedProxies   []string
}

// PageEnvelope is the /api/page response body.
type PageEnvelope struct {
	Success   bool      `json:"success"`
	RequestID string    `json:"request_id"`
	Data      page.Page `json:"data"`
}

// TestSuite provides utilities for integration testing
type TestSuite struct {
	Config  TestConfig
	Partner *MockPartnerAPI
	Geo     *MockGeoService
	Server  *httptest.Server
	Client  *http.Client
	DB      *sql.DB
	App     *server.App
	mu      sync.Mutex
	ipCount int
}

type SuiteOption func(*TestConfig)

// WithoutTrustedProxies makes the server ignore forwarding headers.
func WithoutTrustedProxies() SuiteOption {
	return func(c *TestConfig) { c.TrustedProxies = nil }
}

func WithRateLimit(rps float64, burst int) SuiteOption {
	return func(c *TestConfig) {
		c.RateLimitRPS = rps
		c.RateLimitBurst = burst
	}
}

// NewTestSuite starts mock upstreams, a fresh audit database and the real
// router on an httptest server.
func NewTestSuite(t *testing.T, opts ...SuiteOption) *TestSuite {
	testDir := t.TempDir()

	cfg := TestConfig{
		DBPath:           filepath.Join(testDir, fmt.Sprintf("test_%d.db", time.Now().UnixNano())),
		TestDataDir:      testDir,
		InventoryTimeout: 500 * time.Millisecond,
		GeoTimeout:       300 * time.Millisecond,
		RateLimitRPS:     1000,
		RateLimitBurst:   1000,
		TrustedProxies:   []string{"127.0.0.1", "::1"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	suite := &TestSuite{
		Config:  cfg,
		Partner: NewMockPartnerAPI(),
		Geo:     NewMockGeoService(),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
	t.Cleanup(suite.Cleanup)

	if err := suite.InitDatabase(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	suite.Partner.AddStrain(FeaturedStrainID, DefaultStrain())

	signer, err := security.NewHMACSigner(MockSecret)
	if err != nil {
		t.Fatalf("Failed to build signer: %v", err)
	}
	client := inventory.NewClient(config.InventoryConfig{
		BaseURL:       suite.Partner.BaseURL(),
		APIKey:        MockAPIKey,
		SigningSecret: MockSecret,
		Timeout:       cfg.InventoryTimeout,
	}, signer)
	resolver := geo.NewHTTPResolver(config.GeoConfig{
		Mode:        config.GeoModeHTTP,
		EndpointURL: suite.Geo.EndpointURL(),
		Timeout:     cfg.GeoTimeout,
	})

	assembler := page.NewAssembler(page.NewPipeline(client, resolver), config.PageConfig{
		FeaturedProductID: FeaturedStrainID,
		Title:             "Home",
	})
	// The suite's client connects over loopback and names visitors via
	// X-Forwarded-For, acting as a reverse proxy.
	proxies, err := middleware.NewProxyTrust(cfg.TrustedProxies)
	if err != nil {
		t.Fatalf("Failed to build proxy trust: %v", err)
	}
	router := server.NewRouter(server.Deps{
		Pages:   page.NewHandler(assembler),
		Limiter: middleware.NewClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Proxies: proxies,
	})

	suite.App = server.NewApp("", router)
	suite.Server = httptest.NewServer(suite.App.Handler())
	return suite
}

// InitDatabase opens the audit database through the data package.
func (ts *TestSuite) InitDatabase() error {
	if err := data.InitDB(ts.Config.DBPath); err != nil {
		return fmt.Errorf("failed to init data package: %w", err)
	}

	db, err := data.GetDB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	ts.DB = db
	return nil
}

// Cleanup stops servers and closes the database
func (ts *TestSuite) Cleanup() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Partner != nil {
		ts.Partner.Close()
	}
	if ts.Geo != nil {
		ts.Geo.Close()
	}
	if err := data.CloseDB(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close data package database: %v\n", err)
	}
}

// NextVisitorIP hands out a distinct documentation-range address per call.
func (ts *TestSuite) NextVisitorIP() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ipCount++
	return fmt.Sprintf("198.51.%d.%d", ts.ipCount/250, ts.ipCount%250+1)
}

// VisitorFrom registers a new visitor IP located in country.
func (ts *TestSuite) VisitorFrom(country string) string {
	ip := ts.NextVisitorIP()
	ts.Geo.SetCountry(ip, country)
	return ip
}

// Get requests path as a visitor from clientIP.
func (ts *TestSuite) Get(path, clientIP string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, ts.Server.URL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	return ts.Client.Do(req)
}

// GetPage fetches /api/page and decodes the envelope.
func (ts *TestSuite) GetPage(t *testing.T, clientIP string) PageEnvelope {
	t.Helper()
	resp, err := ts.Get("/api/page", clientIP)
	ts.AssertNoError(t, err)
	ts.AssertStatusCode(t, resp, http.StatusOK)

	var env PageEnvelope
	ts.AssertNoError(t, ts.ParseJSONResponse(resp, &env))
	return env
}

// GetHome fetches / and returns the HTML body.
func (ts *TestSuite) GetHome(t *testing.T, clientIP string) string {
	t.Helper()
	resp, err := ts.Get("/", clientIP)
	ts.AssertNoError(t, err)
	defer resp.Body.Close()
	ts.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	ts.AssertNoError(t, err)
	return string(body)
}

// ParseJSONResponse parses a JSON response into the provided interface
func (ts *TestSuite) ParseJSONResponse(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(dest)
}

// AssertStatusCode checks if response has expected status code
func (ts *TestSuite) AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertNoError fails the test if error is not nil
func (ts *TestSuite) AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// WaitForCondition waits for a condition to be true or timeout
func (ts *TestSuite) WaitForCondition(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

// Reset clears simulated failures and restores the default featured strain.
func (ts *TestSuite) Reset() {
	ts.Partner.Configure(func(m *MockPartnerAPI) {
		m.FailWithStatus = 0
		m.ServeMalformedJSON = false
		m.SimulateNetworkDelay = 0
	})
	ts.Geo.Configure(func(m *MockGeoService) {
		m.FailWithStatus = 0
		m.SimulateNetworkDelay = 0
	})
	ts.SetFeatured(DefaultStrain())
}
