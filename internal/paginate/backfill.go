package paginate

import (
	"context"
	"sort"
	"sync"

	"driftnet/internal/jsontree"
	"driftnet/internal/metrics"
	"driftnet/internal/model"
	"driftnet/internal/rapidapi"
)

// isRetryablePageError treats bad-request responses as retryable; the
// upstream intermittently 400s on valid cursors.
func isRetryablePageError(err error) bool {
	return rapidapi.IsClientError(err)
}

// DeriveMissing sanitizes every hydrated tweet across the pages and
// returns them keyed by id, along with the referenced ids (reply,
// quote, retweet targets and conversation members) that were never
// hydrated. The missing list is sorted for deterministic batching.
func DeriveMissing(pages []model.Page) (map[string]model.Tweet, []string) {
	hydrated := make(map[string]model.Tweet)
	referenced := map[string]struct{}{}

	for _, page := range pages {
		for _, node := range jsontree.Tweets(page.Data) {
			t := jsontree.SanitizeTweet(node)
			if t.ID != "" {
				hydrated[t.ID] = t
			}
			for _, ref := range jsontree.ReferencedIDs(node) {
				referenced[ref] = struct{}{}
			}
		}
		for _, id := range jsontree.ConversationIDs(page.Data) {
			referenced[id] = struct{}{}
		}
	}

	var missing []string
	for id := range referenced {
		if _, ok := hydrated[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return hydrated, missing
}

// BackfillResult summarizes a backfill pass. Unresolved ids are a
// statistic, never an error.
type BackfillResult struct {
	Fetched    map[string]model.Tweet
	Unresolved []string
}

// Backfill fetches the missing ids in fixed-size batches with bounded
// concurrency and merges whatever the resilient batch path could
// resolve.
func (e *Engine) Backfill(ctx context.Context, missing []string) BackfillResult {
	result := BackfillResult{Fetched: make(map[string]model.Tweet)}
	if len(missing) == 0 {
		return result
	}

	var batches [][]string
	for i := 0; i < len(missing); i += e.batchSize {
		end := i + e.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batches = append(batches, missing[i:end])
	}
	e.log.Info().Int("ids", len(missing)).Int("batches", len(batches)).Msg("backfilling referenced tweets")

	sem := make(chan struct{}, e.concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, ids []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			metrics.BackfillBatches.Inc()
			fetched := e.fetcher.FetchTweetsResilient(ctx, ids)
			e.log.Debug().Int("batch", idx+1).Int("requested", len(ids)).Int("fetched", len(fetched)).Msg("backfill batch done")
			mu.Lock()
			for id, t := range fetched {
				result.Fetched[id] = t
			}
			mu.Unlock()
		}(i, batch)
	}
	wg.Wait()

	for _, id := range missing {
		if _, ok := result.Fetched[id]; !ok {
			result.Unresolved = append(result.Unresolved, id)
		}
	}
	if n := len(result.Unresolved); n > 0 {
		metrics.BackfillUnresolved.Add(float64(n))
		e.log.Warn().Int("unresolved", n).Msg("some referenced tweets stayed unresolved")
	}
	return result
}
