package paginate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"driftnet/internal/model"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses []any // map[string]any pages or errors, consumed in order
	cursors   []string
	batchFn   func(ids []string) map[string]model.Tweet
	batches   [][]string
}

func (f *fakeFetcher) UserTweetsReplies(ctx context.Context, userID, cursor string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(map[string]any), nil
}

func (f *fakeFetcher) FetchTweetsResilient(ctx context.Context, ids []string) map[string]model.Tweet {
	f.mu.Lock()
	f.batches = append(f.batches, ids)
	f.mu.Unlock()
	if f.batchFn != nil {
		return f.batchFn(ids)
	}
	return nil
}

func tweetNode(id string, legacy map[string]any) map[string]any {
	if legacy == nil {
		legacy = map[string]any{}
	}
	return map[string]any{"__typename": "Tweet", "rest_id": id, "legacy": legacy}
}

func pagePayload(nextCursor string, ids ...string) map[string]any {
	var entries []any
	for _, id := range ids {
		entries = append(entries, map[string]any{
			"tweet_results": map[string]any{"result": tweetNode(id, nil)},
		})
	}
	if nextCursor != "" {
		entries = append(entries, map[string]any{
			"content": map[string]any{"cursorType": "Bottom", "value": nextCursor},
		})
	}
	return map[string]any{"entries": entries}
}

func TestRunHaltsAtNaturalEnd(t *testing.T) {
	f := &fakeFetcher{responses: []any{
		pagePayload("c1", "1", "2"),
		pagePayload("", "3"),
	}}
	e := New(f, 20, 10)
	var saved []int
	pages, err := e.Run(context.Background(), "u1", func(all []model.Page, p model.Page) {
		saved = append(saved, p.PageNumber)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].PageNumber != 1 || pages[1].PageNumber != 2 {
		t.Fatalf("page numbers not monotonic: %+v", pages)
	}
	if pages[1].RequestedCursor != "c1" {
		t.Fatalf("second page requested cursor %q", pages[1].RequestedCursor)
	}
	if len(saved) != 2 {
		t.Fatalf("persist callback called %d times", len(saved))
	}
}

func TestRunHaltsOnDuplicateSignature(t *testing.T) {
	f := &fakeFetcher{responses: []any{
		pagePayload("c1", "1", "2"),
		pagePayload("c2", "1", "2"), // same id set, different cursor
		pagePayload("c3", "9"),      // must never be requested
	}}
	e := New(f, 20, 10)
	pages, err := e.Run(context.Background(), "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected halt after duplicate page, got %d pages", len(pages))
	}
	if len(f.cursors) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(f.cursors))
	}
}

func TestRunHaltsWhenNoNewIDs(t *testing.T) {
	f := &fakeFetcher{responses: []any{
		pagePayload("c1", "1", "2"),
		pagePayload("c2", "2"),
	}}
	e := New(f, 20, 10)
	pages, err := e.Run(context.Background(), "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if len(pages[1].NewTweetIDs) != 0 {
		t.Fatalf("expected no new ids on page 2: %v", pages[1].NewTweetIDs)
	}
}

func TestRunHaltsOnCursorLoop(t *testing.T) {
	f := &fakeFetcher{responses: []any{
		pagePayload("c1", "1"),
		pagePayload("c1", "2"), // next cursor already consumed
	}}
	e := New(f, 20, 10)
	pages, err := e.Run(context.Background(), "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if len(f.cursors) != 2 {
		t.Fatalf("cursor loop not detected, %d fetches", len(f.cursors))
	}
}

func TestRunKeepsPagesOnRequestError(t *testing.T) {
	f := &fakeFetcher{responses: []any{
		pagePayload("c1", "1"),
		errors.New("boom"),
	}}
	e := New(f, 20, 10)
	pages, err := e.Run(context.Background(), "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected partial progress of 1 page, got %d", len(pages))
	}
}

func TestDeriveMissingFindsReferences(t *testing.T) {
	page := model.Page{Data: map[string]any{
		"entries": []any{
			tweetNode("10", map[string]any{"in_reply_to_status_id_str": "5"}),
			tweetNode("11", map[string]any{"quoted_status_id_str": "10"}),
			map[string]any{"conversation_metadata": map[string]any{"all_tweet_ids": []any{"10", "12"}}},
		},
	}}
	hydrated, missing := DeriveMissing([]model.Page{page})
	if len(hydrated) != 2 {
		t.Fatalf("expected 2 hydrated, got %d", len(hydrated))
	}
	// "10" is hydrated; "5" and "12" are not.
	if len(missing) != 2 || missing[0] != "12" || missing[1] != "5" {
		t.Fatalf("unexpected missing ids: %v", missing)
	}
}

func TestBackfillBatchesAndUnresolved(t *testing.T) {
	f := &fakeFetcher{batchFn: func(ids []string) map[string]model.Tweet {
		out := map[string]model.Tweet{}
		for _, id := range ids {
			if id == "dead" {
				continue
			}
			out[id] = model.Tweet{ID: id}
		}
		return out
	}}
	e := New(f, 2, 2)
	res := e.Backfill(context.Background(), []string{"a", "b", "c", "dead", "e"})
	if len(res.Fetched) != 4 {
		t.Fatalf("expected 4 fetched, got %d", len(res.Fetched))
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0] != "dead" {
		t.Fatalf("unexpected unresolved: %v", res.Unresolved)
	}
	if len(f.batches) != 3 {
		t.Fatalf("expected 3 batches of size <=2, got %v", f.batches)
	}
}
