package dedup

import (
	"context"
	"testing"
	"time"

	"driftnet/internal/config"
	"driftnet/internal/profilestore"
)

func newService(t *testing.T) (*Service, profilestore.Store, time.Time) {
	t.Helper()
	store, err := profilestore.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(store, config.DedupConfig{RecencyWindowDays: 90, MinAccountAgeDays: 365})
	s.nowFn = func() time.Time { return now }
	return s, store, now
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestDecideNewHandle(t *testing.T) {
	s, _, _ := newService(t)
	d, err := s.Decide(context.Background(), "fresh", "seed", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Process || d.Outcome != OutcomeNew {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestDecideTerminalCategoryAlwaysSkips(t *testing.T) {
	s, store, now := newService(t)
	ctx := context.Background()
	// Processed long ago and classified, so only the category rule can
	// be the reason for the skip.
	if err := store.RecordOrUpdate(ctx, "classified", "ref", "Project", now.Add(-days(400))); err != nil {
		t.Fatal(err)
	}
	d, err := s.Decide(ctx, "classified", "seed", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Process || d.Outcome != OutcomePermanentlyExcluded {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestDecideTooYoungOutranksStaleness(t *testing.T) {
	s, store, now := newService(t)
	ctx := context.Background()
	if err := store.RecordOrUpdate(ctx, "young", "", "", now.Add(-days(200))); err != nil {
		t.Fatal(err)
	}
	age := days(100)
	d, err := s.Decide(ctx, "young", "", &age)
	if err != nil {
		t.Fatal(err)
	}
	if d.Process || d.Outcome != OutcomeTooYoung {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestDecideSeenRecentlyDoesNotBumpTimestamp(t *testing.T) {
	s, store, now := newService(t)
	ctx := context.Background()
	lastSeen := now.Add(-days(30))
	if err := store.RecordOrUpdate(ctx, "recent", "", "", lastSeen); err != nil {
		t.Fatal(err)
	}

	d, err := s.Decide(ctx, "Recent", "seed", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Process || d.Outcome != OutcomeSeenRecently {
		t.Fatalf("unexpected decision: %+v", d)
	}

	rec, err := store.FindByHandle(ctx, "recent")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.LastUpdated.Equal(lastSeen) {
		t.Fatalf("skip must not bump last updated: %v", rec.LastUpdated)
	}
}

func TestDecideEligibleAfterWindow(t *testing.T) {
	s, store, now := newService(t)
	ctx := context.Background()
	if err := store.RecordOrUpdate(ctx, "stale", "", "", now.Add(-days(91))); err != nil {
		t.Fatal(err)
	}
	age := days(500)
	d, err := s.Decide(ctx, "stale", "", &age)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Process || d.Outcome != OutcomeEligible {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestDecideUnknownAgeSkipsAgeRule(t *testing.T) {
	s, store, now := newService(t)
	ctx := context.Background()
	if err := store.RecordOrUpdate(ctx, "ageless", "", "", now.Add(-days(100))); err != nil {
		t.Fatal(err)
	}
	d, err := s.Decide(ctx, "ageless", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Process || d.Outcome != OutcomeEligible {
		t.Fatalf("unknown age must fall through to the recency rule: %+v", d)
	}
}

func TestDecideRecordsEdgeOnSkip(t *testing.T) {
	s, store, now := newService(t)
	ctx := context.Background()
	if err := store.RecordOrUpdate(ctx, "known", "", "", now.Add(-days(10))); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Decide(ctx, "known", "scout", nil); err != nil {
		t.Fatal(err)
	}
	rels, err := store.RelationshipsFor(ctx, "known")
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 1 || rels[0].DiscoveredBy != "scout" {
		t.Fatalf("edge not recorded on skip: %+v", rels)
	}
}

func TestRecordWritesRowAndEdge(t *testing.T) {
	s, store, _ := newService(t)
	ctx := context.Background()
	if err := s.Record(ctx, "newbie", "ref-1", "Profile", "scout"); err != nil {
		t.Fatal(err)
	}
	rec, err := store.FindByHandle(ctx, "NEWBIE")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.ExternalRef != "ref-1" || rec.Category != "Profile" {
		t.Fatalf("record not written: %+v", rec)
	}
	rels, _ := store.RelationshipsFor(ctx, "newbie")
	if len(rels) != 1 {
		t.Fatalf("edge not written: %+v", rels)
	}
}
