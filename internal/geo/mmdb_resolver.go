package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"

	"shopfront/internal/region"
)

type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// MMDBResolver resolves the visitor IP against a local MaxMind GeoLite2
// Country or City database. The reader is safe for concurrent use.
type MMDBResolver struct {
	reader countryReader
}

func OpenMMDBResolver(path string) (*MMDBResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening GeoIP database %s: %w", path, err)
	}
	return &MMDBResolver{reader: reader}, nil
}

func (r *MMDBResolver) Close() error {
	return r.reader.Close()
}

func (r *MMDBResolver) Resolve(ctx context.Context, clientIP string) Location {
	start := time.Now()
	token, err := r.lookup(clientIP)
	return finish(ctx, "mmdb", start, token, err)
}

func (r *MMDBResolver) lookup(clientIP string) (string, *ResolutionError) {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return "", &ResolutionError{Stage: "request", Err: fmt.Errorf("invalid IP address %q", clientIP)}
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return "", &ResolutionError{Stage: "request", Err: fmt.Errorf("non-routable IP address %s", ip)}
	}

	record, err := r.reader.Country(ip)
	if err != nil {
		return "", &ResolutionError{Stage: "lookup", Err: err}
	}

	token := region.Normalize(record.Country.Names["en"])
	if token == "" {
		return "", &ResolutionError{Stage: "empty", Err: errors.New("no country for address")}
	}
	return token, nil
}
