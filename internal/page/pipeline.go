package page

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"shopfront/internal/availability"
	"shopfront/internal/geo"
	"shopfront/internal/inventory"
)

// InventoryFetcher is satisfied by *inventory.Client.
type InventoryFetcher interface {
	Fetch(ctx context.Context, productID string) (*inventory.Record, error)
}

// Result is the outcome of one availability resolution. Record and Decision
// are nil when the inventory fetch failed.
type Result struct {
	Record   *inventory.Record
	Location geo.Location
	Decision *availability.Decision
}

// Pipeline resolves storefront availability for a single render.
type Pipeline struct {
	inventory InventoryFetcher
	geo       geo.Resolver
}

func NewPipeline(inv InventoryFetcher, resolver geo.Resolver) *Pipeline {
	return &Pipeline{inventory: inv, geo: resolver}
}

// Run fetches inventory and resolves the visitor concurrently, then decides.
// A failed inventory fetch is returned as *inventory.FetchError; geo failures
// only show up as an unresolved Location.
func (p *Pipeline) Run(ctx context.Context, productID, clientIP string) (Result, error) {
	var (
		record *inventory.Record
		loc    geo.Location
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := p.inventory.Fetch(gctx, productID)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	g.Go(func() error {
		loc = p.geo.Resolve(gctx, clientIP)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{Location: loc}, asFetchError(productID, err)
	}
	if record == nil {
		return Result{Location: loc}, &inventory.FetchError{ProductID: productID, Kind: inventory.KindParse, Err: errors.New("fetcher returned no record")}
	}

	decision := availability.Decide(*record, loc)
	return Result{Record: record, Location: loc, Decision: &decision}, nil
}

func asFetchError(productID string, err error) error {
	var fetchErr *inventory.FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return &inventory.FetchError{ProductID: productID, Kind: inventory.KindTransport, Err: err}
}
