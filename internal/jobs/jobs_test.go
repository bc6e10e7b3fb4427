package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"driftnet/internal/archive"
	"driftnet/internal/config"
	"driftnet/internal/model"
	"driftnet/internal/profilestore"
	"driftnet/internal/rapidapi"
)

func newTestRunner(t *testing.T, outDir string) *Runner {
	t.Helper()
	store, err := profilestore.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	cfg := config.Default()
	cfg.API.Key = "test"
	cfg.Output.Dir = outDir
	return New(cfg, rapidapi.New(cfg.API), store)
}

func TestRunProcessOnlyRebuildsOutputs(t *testing.T) {
	dir := t.TempDir()
	runner := newTestRunner(t, dir)

	tweet := func(id, parent string) map[string]any {
		return map[string]any{
			"__typename": "Tweet",
			"rest_id":    id,
			"legacy": map[string]any{
				"full_text":                 "text " + id,
				"in_reply_to_status_id_str": parent,
			},
		}
	}
	rawPath := filepath.Join(dir, "alice_2025-01-01_12-00-00.json")
	doc := model.RawDocument{
		Username:  "alice",
		UserID:    "u1",
		FetchedAt: "2025-01-01T12:00:00-05:00",
		TweetsAndReplies: model.PageSet{Pages: []model.Page{{
			PageNumber: 1,
			Data: map[string]any{"entries": []any{
				tweet("100", ""),
				tweet("101", "100"),
			}},
		}}},
	}
	if err := archive.WriteRaw(rawPath, doc); err != nil {
		t.Fatal(err)
	}

	if err := runner.RunProcessOnly(context.Background(), rawPath); err != nil {
		t.Fatal(err)
	}

	cleanPath := filepath.Join(dir, "alice_2025-01-01_12-00-00_clean.json")
	slimPath := filepath.Join(dir, "alice_2025-01-01_12-00-00_clean_slim.json")
	for _, p := range []string{cleanPath, slimPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected derived output %s: %v", p, err)
		}
	}
}

func TestAccountAgeParsing(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if accountAge("", now) != nil {
		t.Fatal("empty created_at must yield nil")
	}
	if accountAge("not a date", now) != nil {
		t.Fatal("unparseable created_at must yield nil")
	}
	age := accountAge("Sun Jun 01 00:00:00 +0000 2024", now)
	if age == nil {
		t.Fatal("expected parsed age")
	}
	if got := int(*age / (24 * time.Hour)); got != 365 {
		t.Fatalf("expected 365 days, got %d", got)
	}
}
