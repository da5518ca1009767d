package market

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"

	"github.com/wspotter/kit/prefs"
	"github.com/wspotter/kit/tool"
)

var fixtureFeed = filepath.Join("testdata", "listings.json")

func price(v float64) *float64 { return &v }

func runMarket(t *testing.T, p prefs.Preferences, payload map[string]any) Result {
	t.Helper()
	out, err := New(Config{Preferences: prefs.Static(p), ListingsPath: fixtureFeed}).Run(context.Background(), payload)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out.(Result)
}

func TestContractValidates(t *testing.T) {
	if result := tool.Validate(Contract().Definition()); !result.OK {
		t.Fatalf("Validate() issues = %v", result.Issues)
	}
}

func TestSearch(t *testing.T) {
	listings, err := LoadListings(context.Background(), fixtureFeed)
	if err != nil {
		t.Fatalf("LoadListings() error = %v", err)
	}
	if len(listings) != 4 {
		t.Fatalf("listing count = %d, want 4", len(listings))
	}

	if got := Search(listings, "  "); len(got) != 2 || got[0].Title != listings[0].Title {
		t.Fatalf("Search(empty) = %v, want first two", got)
	}
	if got := Search(listings, "LAMP"); len(got) != 1 || got[0].Title != "MCM Teal Tangerine Lamp" {
		t.Fatalf("Search(LAMP) = %v, want the lamp", got)
	}
	if got := Search(listings, "zeppelin"); len(got) != 3 {
		t.Fatalf("Search(no match) length = %d, want 3", len(got))
	}
}

func TestCheckReasons(t *testing.T) {
	p := prefs.Preferences{
		KeywordsAllow:   []string{"vintage"},
		KeywordsBlock:   []string{"RTX"},
		MaxPriceUSD:     price(100),
		ConditionsAllow: []string{"USED"},
	}
	got := Check(Listing{Title: "NVIDIA RTX 3070", PriceUSD: 399, Condition: "new"}, p)
	want := []string{ReasonBlockedKeyword, ReasonMissingKeyword, ReasonOverMaxPrice, ReasonConditionDenied}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Check() = %v, want %v", got, want)
	}
	if got := Check(Listing{Title: "Vintage lamp", PriceUSD: 100, Condition: "used"}, p); len(got) != 0 {
		t.Fatalf("Check(match) = %v, want none", got)
	}
}

func TestRunFirstAttemptSuccess(t *testing.T) {
	res := runMarket(t, prefs.Preferences{KeywordsBlock: []string{"rtx"}, MaxPriceUSD: price(100)}, map[string]any{})
	if res.Status != "success" {
		t.Fatalf("Status = %q, want success", res.Status)
	}
	if len(res.VerifiedResults) != 1 || res.VerifiedResults[0].Title != "Atomic Cat Figurine - Vintage 1962" {
		t.Fatalf("VerifiedResults = %v", res.VerifiedResults)
	}
	if len(res.RejectedResults) != 1 {
		t.Fatalf("RejectedResults = %v, want one", res.RejectedResults)
	}
	if reasons := res.RejectedResults[0].Reasons; len(reasons) != 2 || reasons[0] != ReasonBlockedKeyword || reasons[1] != ReasonOverMaxPrice {
		t.Fatalf("Reasons = %v", reasons)
	}
	if res.Observed.Attempt != 1 || res.Observed.Query != "" {
		t.Fatalf("Observed = %+v, want attempt 1 with empty query", res.Observed)
	}
	if res.Preferences == nil || res.Preferences.MaxPriceUSD == nil {
		t.Fatalf("Preferences = %+v, want echoed preferences", res.Preferences)
	}
}

func TestRunCorrectsWithVintage(t *testing.T) {
	res := runMarket(t, prefs.Preferences{ConditionsAllow: []string{"used"}}, map[string]any{"query": "clock"})
	if res.Status != "success" {
		t.Fatalf("Status = %q, want success", res.Status)
	}
	if res.Observed.Attempt != 2 || res.Observed.Query != "clock vintage" {
		t.Fatalf("Observed = %+v, want attempt 2 with clock vintage", res.Observed)
	}
	if len(res.VerifiedResults) != 2 {
		t.Fatalf("VerifiedResults = %v, want two used listings", res.VerifiedResults)
	}
}

func TestRunAllowListBroadensThenStops(t *testing.T) {
	res := runMarket(t, prefs.Preferences{KeywordsAllow: []string{"teak"}}, map[string]any{"query": "lamp"})
	if res.Status != "failed" {
		t.Fatalf("Status = %q, want failed", res.Status)
	}
	if res.Observed.Query != "" || res.Observed.Attempt != 2 {
		t.Fatalf("Observed = %+v, want broadened query on attempt 2", res.Observed)
	}
	if res.VerifiedResults != nil {
		t.Fatalf("VerifiedResults = %v, want none", res.VerifiedResults)
	}
	last := res.Trace[len(res.Trace)-1]
	if last.Step != tool.PhaseSelfCorrect || !strings.HasSuffix(last.Note, "correction repeats a tried parameter set") {
		t.Fatalf("last trace = %+v", last)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	res := runMarket(t, prefs.Preferences{MaxPriceUSD: price(1)}, map[string]any{"query": "clock"})
	if res.Status != "failed" {
		t.Fatalf("Status = %q, want failed", res.Status)
	}
	if res.Observed.Attempt != 3 || res.Observed.Query != "clock vintage vintage" {
		t.Fatalf("Observed = %+v", res.Observed)
	}
	if len(res.RejectedResults) != 3 {
		t.Fatalf("RejectedResults length = %d, want 3", len(res.RejectedResults))
	}
	last := res.Trace[len(res.Trace)-1]
	if last.Note != "verify failed: no listings satisfied preferences; attempts exhausted" {
		t.Fatalf("last trace note = %q", last.Note)
	}
}

func TestRunMissingFeed(t *testing.T) {
	out, err := New(Config{}).Run(context.Background(), map[string]any{"query": "lamp"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	res := out.(Result)
	if res.Status != "failed" || res.Observed != nil {
		t.Fatalf("Run() = %+v, want failed without observation", res)
	}
	if !strings.Contains(res.Detail, "no listings feed configured") {
		t.Fatalf("Detail = %q", res.Detail)
	}
}

func TestRunPayloadFeedOverride(t *testing.T) {
	out, err := New(Config{ListingsPath: "/nonexistent.json"}).Run(context.Background(), map[string]any{
		"query":         "lamp",
		"listings_path": fixtureFeed,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res := out.(Result); res.Status != "success" {
		t.Fatalf("Status = %q, want success (detail %q)", res.Status, res.Detail)
	}
}

func TestRunRedisPreferences(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	source := prefs.NewRedisSourceFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = source.Close() })
	if err := source.Save(context.Background(), prefs.Preferences{KeywordsBlock: []string{"atomic"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := New(Config{Preferences: source, ListingsPath: fixtureFeed}).Run(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	res := out.(Result)
	if res.Status != "success" || len(res.VerifiedResults) != 1 {
		t.Fatalf("Run() = %+v, want one verified listing", res)
	}
	if res.VerifiedResults[0].Title != "NVIDIA RTX 3070 Founders Edition" {
		t.Fatalf("verified = %q", res.VerifiedResults[0].Title)
	}
}
