package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDAssignsAndPropagates(t *testing.T) {
	var seenID, seenIP string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenIP = GetClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.23:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Len(t, seenID, 36, "uuid string")
	assert.Equal(t, seenID, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "198.51.100.23", seenIP)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "upstream-id", seenID)
}

func TestErrorHandlingRecoversPanics(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("template exploded")
	}), RequestID, ErrorHandling)

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal_error", body.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestLoggingCapturesStatus(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), RequestID, Logging)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mark("first"), mark("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestWriteAPISuccess(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteAPISuccess(w, r, map[string]bool{"showStorefront": true})
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body struct {
		Success   bool            `json:"success"`
		Data      map[string]bool `json:"data"`
		RequestID string          `json:"request_id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.True(t, body.Data["showStorefront"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.RequestID)
}

func TestClientRateLimiter(t *testing.T) {
	limiter := NewClientRateLimiter(1, 2)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequestID, limiter.Middleware)

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("192.0.2.1"))
	assert.Equal(t, http.StatusOK, do("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("192.0.2.1"), "burst exhausted")
	assert.Equal(t, http.StatusOK, do("192.0.2.2"), "other clients unaffected")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("192.0.2.1"), "token refilled")
}

func TestClientRateLimiterPrune(t *testing.T) {
	limiter := NewClientRateLimiter(5, 5)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.allow("192.0.2.1")
	now = now.Add(10 * time.Minute)
	limiter.allow("192.0.2.2")

	assert.Equal(t, 1, limiter.Prune(5*time.Minute))
	assert.Len(t, limiter.clients, 1)
	assert.Contains(t, limiter.clients, "192.0.2.2")
}

func TestRateLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := NewClientRateLimiter(1, 1)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequestID, limiter.Middleware)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}

	assert.Equal(t, 1, allowed)
	assert.Len(t, limiter.clients, 1)
	assert.Contains(t, limiter.clients, "203.0.113.9")
}

func TestRateLimiterBehindTrustedProxy(t *testing.T) {
	trust, err := NewProxyTrust([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	limiter := NewClientRateLimiter(1, 1)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequestID, trust.Middleware, limiter.Middleware)

	do := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("198.51.100.1"))
	assert.Equal(t, http.StatusOK, do("198.51.100.2"), "distinct clients behind the proxy")
	assert.Equal(t, http.StatusTooManyRequests, do("192.0.2.50, 198.51.100.1"), "prepended hop is ignored")
}

func TestProxyTrustClientIP(t *testing.T) {
	trust, err := NewProxyTrust([]string{"10.0.0.0/8", " 192.0.2.7 ", "::1"})
	require.NoError(t, err)

	cases := map[string]struct {
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		"untrusted peer headers ignored": {
			remoteAddr: "203.0.113.9:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1", "X-Real-IP": "198.51.100.2"},
			expected:   "203.0.113.9",
		},
		"trusted peer single hop": {
			remoteAddr: "10.0.0.5:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			expected:   "198.51.100.1",
		},
		"trusted chain skips inner proxies": {
			remoteAddr: "192.0.2.7:4000",
			headers:    map[string]string{"X-Forwarded-For": "6.6.6.6, 198.51.100.1, 10.9.9.9"},
			expected:   "198.51.100.1",
		},
		"real ip when no forwarded header": {
			remoteAddr: "10.0.0.5:4000",
			headers:    map[string]string{"X-Real-IP": "198.51.100.3"},
			expected:   "198.51.100.3",
		},
		"garbage hop falls back to peer": {
			remoteAddr: "10.0.0.5:4000",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			expected:   "10.0.0.5",
		},
		"ipv6 loopback proxy": {
			remoteAddr: "[::1]:4000",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::1"},
			expected:   "2001:db8::1",
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, trust.ClientIP(req))
		})
	}

	var none *ProxyTrust
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "10.0.0.5", none.ClientIP(req))
}

func TestNewProxyTrustRejectsInvalidEntries(t *testing.T) {
	_, err := NewProxyTrust([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewProxyTrust([]string{"proxy.internal"})
	assert.Error(t, err)
}
