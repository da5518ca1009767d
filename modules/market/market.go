// Package market implements the Marketplace Watcher tool. It searches a
// listings feed and keeps only the listings that satisfy the long-term
// preferences.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/wspotter/kit/prefs"
	"github.com/wspotter/kit/tool"
)

const (
	// ToolID is the registry id of the marketplace watcher.
	ToolID = "market"
	// Module is the catalog module name.
	Module = "market_watcher"
)

// Rejection reasons.
const (
	ReasonBlockedKeyword  = "blocked keyword"
	ReasonMissingKeyword  = "missing required keyword"
	ReasonOverMaxPrice    = "over max price"
	ReasonConditionDenied = "condition not allowed"
)

var errNoMatches = errors.New("no listings satisfied preferences")

// Contract is the published definition of the tool.
func Contract() tool.Contract {
	return tool.Contract{
		ID:              ToolID,
		Name:            "Marketplace Watcher",
		Icon:            "shopping-cart",
		Description:     "Search a listings feed and keep results matching saved preferences.",
		Version:         "0.1.0",
		RalphLoop:       true,
		AllowNetwork:    tool.AccessNone,
		AllowFilesystem: tool.AccessRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":         map[string]any{"type": "string", "default": ""},
				"listings_path": map[string]any{"type": "string"},
			},
			"required":             []any{},
			"additionalProperties": false,
		},
	}
}

// Observed records the query used by the deciding attempt.
type Observed struct {
	Query   string `json:"query"`
	Attempt int    `json:"attempt"`
}

// Rejected is a listing that failed one or more preference checks.
type Rejected struct {
	Listing
	Reasons []string `json:"reasons"`
}

// Result is the tool's return value.
type Result struct {
	Status          string             `json:"status"`
	Detail          string             `json:"detail,omitempty"`
	Observed        *Observed          `json:"observed,omitempty"`
	VerifiedResults []Listing          `json:"verified_results,omitempty"`
	RejectedResults []Rejected         `json:"rejected_results"`
	Preferences     *prefs.Preferences `json:"preferences,omitempty"`
	Trace           []tool.TraceEntry  `json:"trace"`
}

// ResultStatus implements tool.StatusReporter.
func (r Result) ResultStatus() string {
	return r.Status
}

// Config configures the tool.
type Config struct {
	Preferences  prefs.Source
	ListingsPath string
	Logger       *slog.Logger
}

// Tool is the marketplace watcher.
type Tool struct {
	preferences  prefs.Source
	listingsPath string
	logger       *slog.Logger
}

// New creates the tool. A nil preference source accepts every listing.
func New(cfg Config) *Tool {
	if cfg.Preferences == nil {
		cfg.Preferences = prefs.Static(prefs.Empty())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tool{preferences: cfg.Preferences, listingsPath: cfg.ListingsPath, logger: cfg.Logger}
}

// Candidate returns the catalog entry for the tool.
func (t *Tool) Candidate() tool.Candidate {
	return tool.Candidate{
		Module:     Module,
		Definition: Contract().Definition(),
		Run:        t.Run,
	}
}

type request struct {
	Query        string `mapstructure:"query"`
	ListingsPath string `mapstructure:"listings_path"`
}

type observation struct {
	attempt     int
	preferences prefs.Preferences
	listings    []Listing
}

type outcome struct {
	observed Observed
	verified []Listing
	rejected []Rejected
}

// Run searches for payload["query"] and filters by preferences.
func (t *Tool) Run(ctx context.Context, payload map[string]any) (any, error) {
	var req request
	if err := mapstructure.WeakDecode(payload, &req); err != nil {
		t.logger.Debug("market payload decode", "tool_id", ToolID, "error", err)
	}
	feed := t.listingsPath
	if req.ListingsPath != "" {
		feed = req.ListingsPath
	}

	var current prefs.Preferences
	loop := tool.Loop[string, observation, outcome]{
		Name: ToolID,
		Observe: func(ctx context.Context, attempt int, _ string) (observation, error) {
			p, err := t.preferences.Load(ctx)
			if err != nil {
				return observation{}, err
			}
			listings, err := LoadListings(ctx, feed)
			if err != nil {
				return observation{}, err
			}
			current = p
			return observation{attempt: attempt, preferences: p, listings: listings}, nil
		},
		Execute: func(_ context.Context, query string, obs observation) outcome {
			out := outcome{
				observed: Observed{Query: query, Attempt: obs.attempt},
				rejected: []Rejected{},
			}
			for _, l := range Search(obs.listings, query) {
				if reasons := Check(l, obs.preferences); len(reasons) > 0 {
					out.rejected = append(out.rejected, Rejected{Listing: l, Reasons: reasons})
					continue
				}
				out.verified = append(out.verified, l)
			}
			return out
		},
		Verify: func(out outcome) error {
			if len(out.verified) == 0 {
				return errNoMatches
			}
			return nil
		},
		Correct: func(query string, _ string) (string, bool) {
			if len(current.KeywordsAllow) > 0 {
				return "", true
			}
			return query + " vintage", true
		},
		ObserveNote: func(attempt int, query string) string {
			return fmt.Sprintf("search %q (attempt %d)", query, attempt)
		},
		ExecuteNote: func(obs observation) string {
			return fmt.Sprintf("filter against %d listings", len(obs.listings))
		},
		VerifyNote: "match preferences",
	}

	res := loop.Run(ctx, strings.TrimSpace(req.Query))
	out := Result{
		Status:          "failed",
		RejectedResults: []Rejected{},
		Trace:           res.Trace,
	}
	if res.Output.observed.Attempt > 0 {
		observed := res.Output.observed
		out.Observed = &observed
		out.RejectedResults = res.Output.rejected
		p := current
		out.Preferences = &p
	} else {
		out.Detail = res.Reason
	}
	if res.Succeeded() {
		out.Status = "success"
		out.VerifiedResults = res.Output.verified
	}
	return out, nil
}

// Check returns the reasons l violates p; none means it matches.
func Check(l Listing, p prefs.Preferences) []string {
	var reasons []string
	title := strings.ToLower(l.Title)

	if containsAny(title, p.KeywordsBlock) {
		reasons = append(reasons, ReasonBlockedKeyword)
	}
	if len(p.KeywordsAllow) > 0 && !containsAny(title, p.KeywordsAllow) {
		reasons = append(reasons, ReasonMissingKeyword)
	}
	if p.MaxPriceUSD != nil && l.PriceUSD > *p.MaxPriceUSD {
		reasons = append(reasons, ReasonOverMaxPrice)
	}
	if len(p.ConditionsAllow) > 0 && !equalsAny(l.Condition, p.ConditionsAllow) {
		reasons = append(reasons, ReasonConditionDenied)
	}
	return reasons
}

func containsAny(lowerTitle string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lowerTitle, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func equalsAny(value string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}
