package models

// ProductCandidate is a catalog hit fetched for one request. Candidates are
// transient: they are never persisted beyond the product ids referenced by a
// message's ProductsShown list.
type ProductCandidate struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Price          string   `json:"price"`
	CompareAtPrice string   `json:"compareAtPrice,omitempty"`
	Image          string   `json:"image,omitempty"`
	Inventory      int      `json:"inventory"`
	Tags           []string `json:"tags,omitempty"`
	URL            string   `json:"url,omitempty"`
}

// ProductIDs returns the ordered id list for ProductsShown bookkeeping.
func ProductIDs(candidates []ProductCandidate) []string {
	if len(candidates) == 0 {
		return nil
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}
