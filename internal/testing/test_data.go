package testing

// DefaultStrain is available first in the United Kingdom, then Portugal.
func DefaultStrain() *MockStrain {
	return &MockStrain{
		Name:      "Goldilocks",
		ImageURL:  "https://cdn.example/strains/goldilocks.png",
		Feelings:  "Relaxed, Happy",
		HelpsWith: "Stress, Insomnia",
		Flavour:   "Citrus, Pine",
		Locations: []MockLocation{
			{Country: "United Kingdom", IsAvailable: true},
			{Country: "Germany", IsAvailable: false},
			{Country: "Portugal", IsAvailable: true},
		},
	}
}

// GenerateStrain builds a strain with variations applied.
func GenerateStrain(variations ...string) *MockStrain {
	strain := DefaultStrain()

	for _, variation := range variations {
		switch variation {
		case "unavailable":
			for i := range strain.Locations {
				strain.Locations[i].IsAvailable = false
			}
		case "no_locations":
			strain.Locations = nil
		case "portugal_first":
			strain.Locations = append([]MockLocation{{Country: "Portugal", IsAvailable: true}}, strain.Locations...)
		case "messy_names":
			strain.Locations = []MockLocation{
				{Country: "  UNITED  kingdom ", IsAvailable: true},
				{Country: "United Kingdom", IsAvailable: true},
			}
		case "html_name":
			strain.Name = `<img src=x onerror=alert(1)>`
		}
	}
	return strain
}

// SetFeatured replaces the partner's record for the featured strain.
func (ts *TestSuite) SetFeatured(strain *MockStrain) {
	ts.Partner.AddStrain(FeaturedStrainID, strain)
}
