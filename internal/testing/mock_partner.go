// mock_partner.go - partner inventory and geo endpoints with failure simulation
package testing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

const (
	StrainsPath   = "/api/v1/dapp/strains"
	MockAPIKey    = "mock-api-key"
	MockSecret    = "mock-signing-secret"
	geoPathPrefix = "/json/"
)

type MockLocation struct {
	Country     string
	IsAvailable bool
}

type MockStrain struct {
	Name      string
	ImageURL  string
	Feelings  string
	HelpsWith string
	Flavour   string
	Locations []MockLocation
}

// MockPartnerAPI serves signed strain lookups the way the partner does.
type MockPartnerAPI struct {
	Server  *httptest.Server
	Strains map[string]*MockStrain
	mu      sync.RWMutex

	// Configuration for failure simulation
	FailWithStatus       int
	ServeMalformedJSON   bool
	SimulateNetworkDelay time.Duration

	// Counters for tracking
	Requests         int
	RejectedRequests int
}

func NewMockPartnerAPI() *MockPartnerAPI {
	mock := &MockPartnerAPI{
		Strains: make(map[string]*MockStrain),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(StrainsPath+"/", mock.handleStrain)

	mock.Server = httptest.NewServer(mux)
	return mock
}

func (m *MockPartnerAPI) Close() {
	m.Server.Close()
}

// BaseURL is the value for INVENTORY_API_BASE_URL.
func (m *MockPartnerAPI) BaseURL() string {
	return m.Server.URL + StrainsPath
}

func (m *MockPartnerAPI) AddStrain(id string, strain *MockStrain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Strains[id] = strain
}

// Configure mutates failure settings under the lock.
func (m *MockPartnerAPI) Configure(fn func(m *MockPartnerAPI)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *MockPartnerAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Requests
}

func (m *MockPartnerAPI) handleStrain(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.Requests++
	delay := m.SimulateNetworkDelay
	failStatus := m.FailWithStatus
	malformed := m.ServeMalformedJSON
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, StrainsPath+"/")
	if r.Header.Get("x-auth-apikey") != MockAPIKey || !validSignature(id, r.Header.Get("x-auth-signature")) {
		m.mu.Lock()
		m.RejectedRequests++
		m.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid signature"})
		return
	}

	if failStatus != 0 {
		writeJSON(w, failStatus, map[string]any{"success": false, "message": "simulated failure"})
		return
	}
	if malformed {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"strainLocations": [`))
		return
	}

	m.mu.RLock()
	strain, ok := m.Strains[id]
	m.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "strain not found"})
		return
	}

	locations := make([]map[string]any, 0, len(strain.Locations))
	for _, l := range strain.Locations {
		locations = append(locations, map[string]any{
			"isAvailable": l.IsAvailable,
			"location":    map[string]any{"country": l.Country},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"name":            strain.Name,
			"imageUrl":        strain.ImageURL,
			"feelings":        strain.Feelings,
			"helpsWith":       strain.HelpsWith,
			"flavour":         strain.Flavour,
			"strainLocations": locations,
		},
	})
}

// validSignature checks the signature over the partner's exact payload bytes.
func validSignature(strainID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(MockSecret))
	mac.Write([]byte(`{"strainId":"` + strainID + `"}`))
	return hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(signature))
}

// MockGeoService answers {"country": ...} for known IPs.
type MockGeoService struct {
	Server    *httptest.Server
	Countries map[string]string
	mu        sync.RWMutex

	FailWithStatus       int
	SimulateNetworkDelay time.Duration

	Requests int
}

func NewMockGeoService() *MockGeoService {
	mock := &MockGeoService{Countries: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc(geoPathPrefix, mock.handleLookup)

	mock.Server = httptest.NewServer(mux)
	return mock
}

func (m *MockGeoService) Close() {
	m.Server.Close()
}

// EndpointURL is the value for GEO_ENDPOINT_URL.
func (m *MockGeoService) EndpointURL() string {
	return m.Server.URL + geoPathPrefix + "{ip}"
}

func (m *MockGeoService) SetCountry(ip, country string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Countries[ip] = country
}

func (m *MockGeoService) Configure(fn func(m *MockGeoService)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *MockGeoService) handleLookup(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.Requests++
	delay := m.SimulateNetworkDelay
	failStatus := m.FailWithStatus
	country, ok := m.Countries[strings.TrimPrefix(r.URL.Path, geoPathPrefix)]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "fail", "message": "reserved range"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "country": country})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
