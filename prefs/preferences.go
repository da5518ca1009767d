// Package prefs provides the read-only long-term preference blob consumed by
// tools. Kit never writes preferences during a dispatch.
package prefs

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Preferences filter marketplace listings.
type Preferences struct {
	KeywordsAllow   []string `json:"keywords_allow" mapstructure:"keywords_allow"`
	KeywordsBlock   []string `json:"keywords_block" mapstructure:"keywords_block"`
	MaxPriceUSD     *float64 `json:"max_price_usd" mapstructure:"max_price_usd"`
	ConditionsAllow []string `json:"conditions_allow" mapstructure:"conditions_allow"`
}

// Empty returns preferences that accept every listing.
func Empty() Preferences {
	return Preferences{
		KeywordsAllow:   []string{},
		KeywordsBlock:   []string{},
		ConditionsAllow: []string{},
	}
}

// Source loads preferences.
type Source interface {
	Load(ctx context.Context) (Preferences, error)
}

// Writer is a Source that can also persist preferences.
type Writer interface {
	Source
	Save(ctx context.Context, p Preferences) error
}

// Static is a fixed preference source.
type Static Preferences

// Load returns the static preferences.
func (s Static) Load(ctx context.Context) (Preferences, error) {
	if err := ctx.Err(); err != nil {
		return Preferences{}, err
	}
	return normalize(Preferences(s)), nil
}

// Decode builds preferences from a loosely-typed document. Numeric strings
// are accepted for max_price_usd.
func Decode(doc map[string]any) (Preferences, error) {
	out := Empty()
	if len(doc) == 0 {
		return out, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Preferences{}, fmt.Errorf("prefs: build decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return Preferences{}, fmt.Errorf("prefs: decode preferences: %w", err)
	}
	return normalize(out), nil
}

func normalize(p Preferences) Preferences {
	p.KeywordsAllow = cleanList(p.KeywordsAllow)
	p.KeywordsBlock = cleanList(p.KeywordsBlock)
	p.ConditionsAllow = cleanList(p.ConditionsAllow)
	return p
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
