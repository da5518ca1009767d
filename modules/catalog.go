// Package modules is the compiled-in tool collection offered to discovery.
package modules

import (
	"context"
	"log/slog"
	"slices"

	"github.com/wspotter/kit/modules/fstriage"
	"github.com/wspotter/kit/modules/inbox"
	"github.com/wspotter/kit/modules/market"
	"github.com/wspotter/kit/modules/syshealth"
	"github.com/wspotter/kit/prefs"
	"github.com/wspotter/kit/tool"
)

// CatalogConfig configures the built-in tools.
type CatalogConfig struct {
	Preferences  prefs.Source
	ListingsPath string
	// Disabled lists module names or tool ids to leave out.
	Disabled []string
	Logger   *slog.Logger
}

// Catalog is a tool.CandidateSource over the built-in tools.
type Catalog struct {
	cfg CatalogConfig
}

// NewCatalog creates the built-in catalog.
func NewCatalog(cfg CatalogConfig) *Catalog {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Catalog{cfg: cfg}
}

// Candidates returns a fresh candidate for every enabled built-in tool.
func (c *Catalog) Candidates(ctx context.Context) ([]tool.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := []tool.Candidate{
		fstriage.New(fstriage.Config{Logger: c.cfg.Logger}).Candidate(),
		syshealth.New(syshealth.Config{Logger: c.cfg.Logger}).Candidate(),
		market.New(market.Config{
			Preferences:  c.cfg.Preferences,
			ListingsPath: c.cfg.ListingsPath,
			Logger:       c.cfg.Logger,
		}).Candidate(),
		inbox.Candidate(),
	}
	out := make([]tool.Candidate, 0, len(all))
	for _, candidate := range all {
		if c.disabled(candidate) {
			continue
		}
		out = append(out, candidate)
	}
	return out, nil
}

func (c *Catalog) disabled(candidate tool.Candidate) bool {
	if len(c.cfg.Disabled) == 0 {
		return false
	}
	def, _ := candidate.Definition.(tool.Definition)
	id, _ := def["id"].(string)
	return slices.Contains(c.cfg.Disabled, candidate.Module) || slices.Contains(c.cfg.Disabled, id)
}

var _ tool.CandidateSource = (*Catalog)(nil)
