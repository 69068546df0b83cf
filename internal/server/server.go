package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"shopfront/internal/logger"
	"shopfront/internal/metrics"
	"shopfront/internal/middleware"
	"shopfront/internal/page"
)

const (
	requestTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Deps are the handlers and middleware the router is built from.
type Deps struct {
	Pages   *page.Handler
	Limiter *middleware.ClientRateLimiter
	Proxies *middleware.ProxyTrust
}

// NewRouter wires the public routes. Page routes are rate limited, the
// operational ones are not.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, d.Proxies.Middleware, middleware.ErrorHandling, middleware.Logging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.MetricsHandler())

	r.Group(func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}
		r.Get("/", d.Pages.Home)
		r.Get("/api/page", d.Pages.PageJSON)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.LogInfo("404 not found: %s", r.URL.Path)
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "The requested resource was not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is supported", "")
	})

	return r
}

type App struct {
	addr          string
	handler       http.Handler
	connections   sync.WaitGroup
	totalRequests int64
}

func NewApp(addr string, router http.Handler) *App {
	return &App{addr: addr, handler: router}
}

// Handler assembles the outer middleware around the router.
func (a *App) Handler() http.Handler {
	return middleware.Chain(a.handler,
		func(h http.Handler) http.Handler { return withTimeout(h, requestTimeout) },
		a.trackConnections,
	)
}

func (a *App) TotalRequests() int64 {
	return atomic.LoadInt64(&a.totalRequests)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogInfo("Starting server on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.LogInfo("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", a.TotalRequests())
	logger.LogInfo("Server shut down gracefully")
	return nil
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}
