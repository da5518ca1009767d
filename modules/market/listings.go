package market

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Listing is one marketplace item.
type Listing struct {
	Title     string  `json:"title" yaml:"title"`
	PriceUSD  float64 `json:"price_usd" yaml:"price_usd"`
	Condition string  `json:"condition" yaml:"condition"`
}

// LoadListings reads a listings feed: a JSON or YAML sequence of listings.
func LoadListings(ctx context.Context, path string) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("market: no listings feed configured")
	}
	// #nosec G304 -- feed path comes from local config or the caller of a read-only tool.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("market: read listings %q: %w", path, err)
	}
	var listings []Listing
	if err := yaml.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("market: parse listings %q: %w", path, err)
	}
	return listings, nil
}

// Search matches query case-insensitively against titles. An empty query
// returns the first two listings and a query with no match the first three.
func Search(listings []Listing, query string) []Listing {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return head(listings, 2)
	}
	var out []Listing
	for _, l := range listings {
		if strings.Contains(strings.ToLower(l.Title), q) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return head(listings, 3)
	}
	return out
}

func head(listings []Listing, n int) []Listing {
	n = min(n, len(listings))
	out := make([]Listing, n)
	copy(out, listings[:n])
	return out
}
