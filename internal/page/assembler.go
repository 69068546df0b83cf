package page

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shopfront/internal/availability"
	"shopfront/internal/config"
	"shopfront/internal/data"
	"shopfront/internal/geo"
	"shopfront/internal/logger"
	"shopfront/internal/metrics"
)

// Product is the display block for the featured product.
type Product struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ImageURL     string `json:"imageUrl"`
	Feelings     string `json:"feelings"`
	HelpsWith    string `json:"helpsWith"`
	FlavourNotes string `json:"flavourNotes"`
}

// Page is the view model for one render. Product and Decision are nil when
// inventory could not be fetched, and the storefront is then never shown.
type Page struct {
	Title          string                 `json:"title"`
	Product        *Product               `json:"product,omitempty"`
	ShowStorefront bool                   `json:"showStorefront"`
	Decision       *availability.Decision `json:"decision,omitempty"`
	Visitor        geo.Location           `json:"visitor"`
	InventoryError string                 `json:"inventoryError,omitempty"`
	RenderedAt     time.Time              `json:"renderedAt"`
}

// AuditFunc persists a render event. Errors are logged, never surfaced.
type AuditFunc func(ctx context.Context, ev data.RenderEvent) (int64, error)

type Assembler struct {
	pipeline *Pipeline
	cfg      config.PageConfig
	audit    AuditFunc
	now      func() time.Time
}

type AssemblerOption func(*Assembler)

// WithAudit overrides the audit sink; nil disables auditing.
func WithAudit(fn AuditFunc) AssemblerOption {
	return func(a *Assembler) { a.audit = fn }
}

func NewAssembler(pipeline *Pipeline, cfg config.PageConfig, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		pipeline: pipeline,
		cfg:      cfg,
		audit:    data.InsertRenderEvent,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the page for one render. It never fails: an inventory
// error drops the product and storefront sections and is reported on the page.
func (a *Assembler) Assemble(ctx context.Context, requestID, clientIP string) *Page {
	start := a.now()
	page := &Page{Title: a.cfg.Title, RenderedAt: start}

	result, err := a.pipeline.Run(ctx, a.cfg.FeaturedProductID, clientIP)
	page.Visitor = result.Location

	if err != nil {
		page.InventoryError = err.Error()
		metrics.RecordInventoryFailure()
		logger.L().Error("inventory unavailable, rendering without storefront",
			zap.String("request_id", requestID),
			zap.String("product_id", a.cfg.FeaturedProductID),
			zap.Error(err),
		)
	} else {
		rec := result.Record
		page.Product = &Product{
			ID:           rec.ProductID,
			Name:         rec.Name,
			ImageURL:     rec.ImageURL,
			Feelings:     rec.Feelings,
			HelpsWith:    rec.HelpsWith,
			FlavourNotes: rec.FlavourNotes,
		}
		page.Decision = result.Decision
		page.ShowStorefront = result.Decision.ShowStorefront
		metrics.RecordDecision(string(result.Decision.Reason), result.Decision.ShowStorefront)
	}

	elapsed := a.now().Sub(start)
	a.record(ctx, requestID, page, result, elapsed)

	logger.L().Info("page assembled",
		zap.String("request_id", requestID),
		zap.Bool("show_storefront", page.ShowStorefront),
		zap.Bool("geo_resolved", page.Visitor.Resolved),
		zap.Bool("inventory_ok", page.Product != nil),
		zap.Duration("elapsed", elapsed),
	)
	return page
}

func (a *Assembler) record(ctx context.Context, requestID string, page *Page, result Result, elapsed time.Duration) {
	if a.audit == nil {
		return
	}

	ev := data.RenderEvent{
		RequestID:      requestID,
		RenderedAt:     page.RenderedAt,
		ProductID:      a.cfg.FeaturedProductID,
		InventoryOK:    page.Product != nil,
		InventoryError: page.InventoryError,
		VisitorRegion:  page.Visitor.Region,
		GeoResolved:    page.Visitor.Resolved,
		ShowStorefront: page.ShowStorefront,
		Duration:       elapsed,
	}
	if primary, ok := result.Record.PrimaryRegion(); ok {
		ev.PrimaryRegion = primary
	}
	if page.Decision != nil {
		ev.Reason = string(page.Decision.Reason)
	}

	// Detached so a client disconnect does not drop the audit row.
	if _, err := a.audit(context.WithoutCancel(ctx), ev); err != nil {
		logger.L().Warn("failed to record render event",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}
