package prefs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"

	"github.com/wspotter/kit/prefs"
)

func TestFileSourceMissingFile(t *testing.T) {
	got, err := prefs.NewFileSource(filepath.Join(t.TempDir(), "nope.json")).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.KeywordsAllow) != 0 || got.MaxPriceUSD != nil {
		t.Fatalf("Load() = %+v, want empty", got)
	}
}

func TestFileSourceLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")
	doc := `{"keywords_allow":["atomic"," "],"keywords_block":["rtx"],"max_price_usd":"60","conditions_allow":["used"]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := prefs.NewFileSource(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.KeywordsAllow) != 1 || got.KeywordsAllow[0] != "atomic" {
		t.Fatalf("KeywordsAllow = %v, want [atomic]", got.KeywordsAllow)
	}
	if got.MaxPriceUSD == nil || *got.MaxPriceUSD != 60 {
		t.Fatalf("MaxPriceUSD = %v, want 60", got.MaxPriceUSD)
	}
	if len(got.ConditionsAllow) != 1 {
		t.Fatalf("ConditionsAllow = %v, want [used]", got.ConditionsAllow)
	}
}

func TestFileSourceRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := prefs.NewFileSource(path).Load(context.Background()); err == nil {
		t.Fatal("Load() error = nil, want non-nil")
	}
}

func TestDecodeNullPrice(t *testing.T) {
	got, err := prefs.Decode(map[string]any{"max_price_usd": nil})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.MaxPriceUSD != nil {
		t.Fatalf("MaxPriceUSD = %v, want nil", *got.MaxPriceUSD)
	}
}

func newRedisSource(t *testing.T) (*prefs.RedisSource, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	source := prefs.NewRedisSourceFromClient(client, prefs.WithKey("test:prefs"))
	t.Cleanup(func() { _ = source.Close() })
	return source, mr
}

func TestRedisSourceMissingKey(t *testing.T) {
	source, _ := newRedisSource(t)
	got, err := source.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.KeywordsBlock) != 0 {
		t.Fatalf("Load() = %+v, want empty", got)
	}
}

func TestRedisSourceSaveLoad(t *testing.T) {
	source, mr := newRedisSource(t)
	price := 100.0
	want := prefs.Preferences{
		KeywordsBlock:   []string{"rtx"},
		MaxPriceUSD:     &price,
		ConditionsAllow: []string{"used", "new"},
	}
	if err := source.Save(context.Background(), want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("test:prefs") {
		t.Fatal("key test:prefs missing after Save")
	}

	got, err := source.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.MaxPriceUSD == nil || *got.MaxPriceUSD != 100 {
		t.Fatalf("MaxPriceUSD = %v, want 100", got.MaxPriceUSD)
	}
	if len(got.ConditionsAllow) != 2 || got.KeywordsBlock[0] != "rtx" {
		t.Fatalf("Load() = %+v", got)
	}
}

func TestRedisSourceMalformedValue(t *testing.T) {
	source, mr := newRedisSource(t)
	if err := mr.Set(source.Key(), "nope"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := source.Load(context.Background()); err == nil {
		t.Fatal("Load() error = nil, want non-nil")
	}
}

func TestRedisSourceUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	source := prefs.NewRedisSource(addr, "", 0)
	t.Cleanup(func() { _ = source.Close() })
	if _, err := source.Load(context.Background()); err == nil {
		t.Fatal("Load() error = nil, want non-nil")
	}
}

func TestFileSourceSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "preferences.json")
	source := prefs.NewFileSource(path)
	price := 45.0

	err := source.Save(context.Background(), prefs.Preferences{
		KeywordsBlock: []string{" broken ", ""},
		MaxPriceUSD:   &price,
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := source.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.KeywordsBlock) != 1 || got.KeywordsBlock[0] != "broken" {
		t.Fatalf("KeywordsBlock = %v, want [broken]", got.KeywordsBlock)
	}
	if got.MaxPriceUSD == nil || *got.MaxPriceUSD != 45 {
		t.Fatalf("MaxPriceUSD = %v, want 45", got.MaxPriceUSD)
	}

	if err := prefs.NewFileSource("").Save(context.Background(), prefs.Empty()); err == nil {
		t.Fatal("Save() error = nil for empty path")
	}
}
