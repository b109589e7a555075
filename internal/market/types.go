package market

import "strings"

// PageInfo is the pagination block the upstream attaches to every
// collection page.
type PageInfo struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

// RecordPage is one page of the player collection.
type RecordPage struct {
	Records []Record
	Page    PageInfo
}

// ListingKind selects which market collection a listing query targets.
type ListingKind string

// The two listing collections the upstream exposes.
const (
	KindSales     ListingKind = "market_sales"
	KindBuyOrders ListingKind = "market_buyorders"
)

// ListingEmbeddedKeys returns the `_embedded` aliases a listing page may
// carry. The upstream is inconsistent and sometimes labels a collection
// with the sibling collection's key, so both must be checked and whichever
// is non-empty wins.
func ListingEmbeddedKeys() []string {
	return []string{string(KindSales), string(KindBuyOrders)}
}

// Valid reports whether the kind names a known collection.
func (k ListingKind) Valid() bool {
	return k == KindSales || k == KindBuyOrders
}

// ListedItem is a single market listing, normalized on ingestion: price is
// rounded to the nearest whole unit and clamped non-negative.
type ListedItem struct {
	Material string `json:"material"`
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
	OwnerID  string `json:"ownerId,omitempty"`
}

// ListingPage is one page of a listing collection, with the absolute URL of
// the next page when the server supplied one.
type ListingPage struct {
	Items []ListedItem
	Next  string
	Page  PageInfo
}

// ListingQuery describes what the aggregator should collect. Material and
// OwnerID are both optional; when both are set the owner endpoint is used
// and the material filter is applied client-side.
type ListingQuery struct {
	Kind     ListingKind
	Material string
	OwnerID  string
}

// Filtered reports whether any filter is active. Unfiltered queries are the
// expensive case and are the only ones subject to page/item ceilings.
func (q ListingQuery) Filtered() bool {
	return q.Material != "" || q.OwnerID != ""
}

// NormalizeMaterial upper-cases a material name for comparison and for the
// type-scoped search endpoint.
func NormalizeMaterial(material string) string {
	return strings.ToUpper(strings.TrimSpace(material))
}
