// Package availability decides whether the storefront section is shown for a
// render.
package availability

import (
	"shopfront/internal/geo"
	"shopfront/internal/inventory"
	"shopfront/internal/region"
)

type Reason string

const (
	ReasonNoInventoryData Reason = "no_inventory_data"
	ReasonGeoUnresolved   Reason = "geo_unresolved"
	ReasonRegionsMatch    Reason = "regions_match"
	ReasonRegionsDiffer   Reason = "regions_differ"
)

type Decision struct {
	ShowStorefront bool   `json:"showStorefront"`
	Reason         Reason `json:"reason"`
}

// Decide gates the storefront on the product's primary region, the first
// entry of AvailableRegions, rather than on set membership. The storefront is
// shown only when the visitor is outside that region (a cross-region upsell)
// and stays hidden when the regions match.
func Decide(record inventory.Record, loc geo.Location) Decision {
	primary, ok := record.PrimaryRegion()
	if !ok {
		return Decision{ShowStorefront: false, Reason: ReasonNoInventoryData}
	}
	if !loc.Resolved {
		return Decision{ShowStorefront: false, Reason: ReasonGeoUnresolved}
	}
	if !region.Equal(primary, loc.Region) {
		return Decision{ShowStorefront: true, Reason: ReasonRegionsDiffer}
	}
	return Decision{ShowStorefront: false, Reason: ReasonRegionsMatch}
}
