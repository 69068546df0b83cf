package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shopfront/internal/geo"
	"shopfront/internal/inventory"
	"shopfront/internal/region"
)

func record(regions ...string) inventory.Record {
	tokens := make([]string, 0, len(regions))
	for _, r := range regions {
		tokens = append(tokens, region.Normalize(r))
	}
	return inventory.Record{ProductID: "strain-1", Name: "Goldilocks", AvailableRegions: tokens}
}

func resolved(country string) geo.Location {
	return geo.Location{Region: region.Normalize(country), Resolved: true}
}

func TestDecide(t *testing.T) {
	cases := map[string]struct {
		record   inventory.Record
		location geo.Location
		expected Decision
	}{
		"visitor outside primary region sees storefront": {
			record:   record("United Kingdom"),
			location: resolved("Germany"),
			expected: Decision{ShowStorefront: true, Reason: ReasonRegionsDiffer},
		},
		"visitor inside primary region does not": {
			record:   record("Germany"),
			location: resolved("germany"),
			expected: Decision{ShowStorefront: false, Reason: ReasonRegionsMatch},
		},
		"geo unresolved hides storefront": {
			record:   record("United Kingdom"),
			location: geo.Unresolved,
			expected: Decision{ShowStorefront: false, Reason: ReasonGeoUnresolved},
		},
		"empty regions beat unresolved geo": {
			record:   record(),
			location: geo.Unresolved,
			expected: Decision{ShowStorefront: false, Reason: ReasonNoInventoryData},
		},
		"empty regions with resolved geo": {
			record:   record(),
			location: resolved("Germany"),
			expected: Decision{ShowStorefront: false, Reason: ReasonNoInventoryData},
		},
		"nil regions treated as empty": {
			record:   inventory.Record{ProductID: "strain-1"},
			location: resolved("Germany"),
			expected: Decision{ShowStorefront: false, Reason: ReasonNoInventoryData},
		},
		"only the first region counts even when visitor region is listed later": {
			record:   record("United Kingdom", "Germany"),
			location: resolved("Germany"),
			expected: Decision{ShowStorefront: true, Reason: ReasonRegionsDiffer},
		},
		"first region match ignores the rest": {
			record:   record("Germany", "Portugal"),
			location: resolved("Germany"),
			expected: Decision{ShowStorefront: false, Reason: ReasonRegionsMatch},
		},
		"hand built record with raw names is normalized": {
			record:   inventory.Record{AvailableRegions: []string{" United  Kingdom "}},
			location: geo.Location{Region: "united kingdom", Resolved: true},
			expected: Decision{ShowStorefront: false, Reason: ReasonRegionsMatch},
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decide(tt.record, tt.location))
		})
	}
}

func TestDecideGeoUnresolvedForAnyNonEmptyRecord(t *testing.T) {
	for _, regions := range [][]string{
		{"United Kingdom"},
		{"Germany", "Portugal"},
		{"Thailand", "South Africa", "Canada"},
	} {
		d := Decide(record(regions...), geo.Location{Resolved: false})
		assert.Equal(t, Decision{ShowStorefront: false, Reason: ReasonGeoUnresolved}, d, "regions %v", regions)
	}

	// A stale region on an unresolved location must not leak into the decision.
	d := Decide(record("Germany"), geo.Location{Region: "germany", Resolved: false})
	assert.Equal(t, ReasonGeoUnresolved, d.Reason)
}

func TestDecideEmptyRegionsIgnoresLocation(t *testing.T) {
	for _, loc := range []geo.Location{geo.Unresolved, resolved("Germany"), resolved("United Kingdom")} {
		assert.Equal(t, Decision{ShowStorefront: false, Reason: ReasonNoInventoryData}, Decide(record(), loc))
	}
}

func TestDecideNormalizedEquality(t *testing.T) {
	variants := []string{"United Kingdom", "united kingdom", " United  Kingdom ", "UNITED\tKINGDOM"}
	for _, a := range variants {
		for _, b := range variants {
			rec := inventory.Record{AvailableRegions: []string{a}}
			loc := geo.Location{Region: b, Resolved: true}
			assert.Equal(t, Decision{ShowStorefront: false, Reason: ReasonRegionsMatch}, Decide(rec, loc), "%q vs %q", a, b)
		}
	}
}

func TestDecideIsIdempotent(t *testing.T) {
	rec := record("United Kingdom", "Germany")
	loc := resolved("Portugal")

	first := Decide(rec, loc)
	second := Decide(rec, loc)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"unitedkingdom", "germany"}, rec.AvailableRegions, "inputs are not mutated")
}
