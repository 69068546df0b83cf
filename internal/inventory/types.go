package inventory

// Partner API envelope for GET {base}/{productId}.
type apiEnvelope struct {
	Data *apiProduct `json:"data"`
}

type apiProduct struct {
	Name            string        `json:"name"`
	ImageURL        string        `json:"imageUrl"`
	Feelings        string        `json:"feelings"`
	HelpsWith       string        `json:"helpsWith"`
	Flavour         string        `json:"flavour"`
	StrainLocations []apiLocation `json:"strainLocations"`
}

type apiLocation struct {
	IsAvailable bool `json:"isAvailable"`
	Location    struct {
		Country string `json:"country"`
	} `json:"location"`
}

// requestPayload is what gets signed. The partner verifies the signature
// against this exact shape.
type requestPayload struct {
	ProductID string `json:"strainId"`
}

// Record is the canonical form of a fetched product.
type Record struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	ImageURL     string `json:"imageUrl"`
	Feelings     string `json:"feelings"`
	HelpsWith    string `json:"helpsWith"`
	FlavourNotes string `json:"flavourNotes"`

	// AvailableRegions holds normalized region tokens in the order the
	// partner returned them. Empty means available nowhere.
	AvailableRegions []string `json:"availableRegions"`
}

// PrimaryRegion is the first available region, which drives the storefront
// decision.
func (r *Record) PrimaryRegion() (string, bool) {
	if r == nil || len(r.AvailableRegions) == 0 {
		return "", false
	}
	return r.AvailableRegions[0], true
}
