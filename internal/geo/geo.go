// Package geo resolves the visitor's region. Resolution is best effort:
// resolvers report failure through Location.Resolved and never return errors.
package geo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopfront/internal/config"
	"shopfront/internal/logger"
	"shopfront/internal/metrics"
)

// Location is the visitor's resolved region. Region is a normalized token and
// is empty whenever Resolved is false.
type Location struct {
	Region   string `json:"region,omitempty"`
	Resolved bool   `json:"resolved"`
}

// Unresolved is the zero Location.
var Unresolved = Location{}

// Resolver looks up the region for the current visitor. clientIP may be empty.
type Resolver interface {
	Resolve(ctx context.Context, clientIP string) Location
}

// ResolutionError describes why a lookup failed. It is logged and counted,
// never returned to callers of Resolve.
type ResolutionError struct {
	Stage      string // "request", "transport", "status", "parse", "lookup", "empty"
	StatusCode int
	Err        error
}

func (e *ResolutionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("geo resolution failed at %s: status %d", e.Stage, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("geo resolution failed at %s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("geo resolution failed at %s", e.Stage)
	}
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func reportFailure(source string, err *ResolutionError) {
	logger.L().Warn("geo resolution failed",
		zap.String("source", source),
		zap.String("stage", err.Stage),
		zap.Int("status", err.StatusCode),
		zap.Error(err.Err),
	)
}

// NewResolver builds the resolver selected by cfg.Mode.
func NewResolver(cfg config.GeoConfig) (Resolver, error) {
	switch cfg.Mode {
	case config.GeoModeHTTP, "":
		return NewHTTPResolver(cfg), nil
	case config.GeoModeMMDB:
		return OpenMMDBResolver(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown geo mode %q", cfg.Mode)
	}
}

// finish records a lookup and turns it into a Location. A lookup cut short by
// the caller's context is counted as canceled and not reported as a failure.
func finish(ctx context.Context, source string, start time.Time, token string, err *ResolutionError) Location {
	metrics.RecordUpstream(metrics.UpstreamGeo, outcome(ctx, err), time.Since(start))
	switch {
	case err == nil:
		return Location{Region: token, Resolved: true}
	case ctx.Err() != nil:
		logger.L().Debug("geo resolution abandoned",
			zap.String("source", source),
			zap.Error(ctx.Err()),
		)
	default:
		reportFailure(source, err)
	}
	return Unresolved
}

func outcome(ctx context.Context, err *ResolutionError) string {
	if err == nil {
		return "ok"
	}
	if ctx.Err() != nil {
		return metrics.OutcomeCanceled
	}
	if err.Stage == "status" {
		return metrics.StatusOutcome(err.StatusCode)
	}
	return err.Stage
}
