// Package paginate walks a user's cursor-based timeline pages, detects
// duplicate and looping pages, and backfills referenced tweets that the
// page loop never hydrated.
package paginate

import (
	"context"

	"github.com/rs/zerolog"

	"driftnet/internal/jsontree"
	"driftnet/internal/logging"
	"driftnet/internal/metrics"
	"driftnet/internal/model"
)

// TimelineFetcher is the slice of the API client the engine needs.
type TimelineFetcher interface {
	UserTweetsReplies(ctx context.Context, userID, cursor string) (map[string]any, error)
	FetchTweetsResilient(ctx context.Context, ids []string) map[string]model.Tweet
}

// pageAttempts bounds retries of one page on a client-side error
// before pagination stops with the pages collected so far.
const pageAttempts = 3

// Engine drives pagination runs. A run owns its pages; the engine
// itself is stateless across runs.
type Engine struct {
	fetcher     TimelineFetcher
	batchSize   int
	concurrency int
	log         zerolog.Logger
}

func New(fetcher TimelineFetcher, batchSize, concurrency int) *Engine {
	if batchSize < 1 {
		batchSize = 20
	}
	if concurrency < 1 {
		concurrency = 10
	}
	return &Engine{
		fetcher:     fetcher,
		batchSize:   batchSize,
		concurrency: concurrency,
		log:         logging.NewLogger("paginate"),
	}
}

// OnPageSaved is invoked after each page with all pages collected so
// far, so callers can persist partial progress write-ahead style.
type OnPageSaved func(pages []model.Page, page model.Page)

// Run fetches pages until one of the halt rules fires, in priority
// order: duplicate page content, no new tweet ids, no next cursor,
// already-consumed cursor. Pages collected before an HTTP failure are
// returned, not discarded.
func (e *Engine) Run(ctx context.Context, userID string, onPageSaved OnPageSaved) ([]model.Page, error) {
	var pages []model.Page
	seenCursors := map[string]struct{}{}
	seenSignatures := map[string]struct{}{}
	seenTweetIDs := map[string]struct{}{}
	cursor := ""

	for {
		pageNumber := len(pages) + 1
		payload, err := e.fetchPage(ctx, userID, cursor, pageNumber)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			e.log.Error().Int("page", pageNumber).Err(err).Msg("stopping pagination after request error")
			return pages, nil
		}

		tweetIDs := jsontree.TweetIDs(payload)
		nextCursor := jsontree.NextCursor(payload)
		signature := jsontree.PageSignature(payload)
		_, duplicate := seenSignatures[signature]

		var newIDs []string
		for _, id := range tweetIDs {
			if _, ok := seenTweetIDs[id]; !ok {
				newIDs = append(newIDs, id)
			}
		}

		page := model.Page{
			PageNumber:      pageNumber,
			Cursor:          cursor,
			RequestedCursor: cursor,
			NextCursor:      nextCursor,
			PageSignature:   signature,
			TweetIDs:        tweetIDs,
			NewTweetIDs:     newIDs,
			Data:            payload,
		}
		pages = append(pages, page)
		metrics.PagesFetched.Inc()
		if onPageSaved != nil {
			onPageSaved(pages, page)
		}

		if duplicate {
			e.log.Warn().Int("page", pageNumber).Msg("page content identical to a previous page, stopping")
			break
		}
		if len(newIDs) == 0 {
			e.log.Warn().Int("page", pageNumber).Msg("page contained no new tweets, stopping")
			break
		}
		if nextCursor == "" {
			e.log.Info().Int("page", pageNumber).Msg("no next cursor, pagination complete")
			break
		}
		if _, seen := seenCursors[nextCursor]; seen {
			e.log.Warn().Int("page", pageNumber).Str("cursor", nextCursor).Msg("cursor already seen, stopping")
			break
		}

		seenCursors[nextCursor] = struct{}{}
		seenSignatures[signature] = struct{}{}
		for _, id := range newIDs {
			seenTweetIDs[id] = struct{}{}
		}
		cursor = nextCursor
	}

	e.log.Info().Int("pages", len(pages)).Str("user_id", userID).Msg("pagination run finished")
	return pages, nil
}

// fetchPage retries a page a few times on client-side errors; anything
// else fails the page immediately.
func (e *Engine) fetchPage(ctx context.Context, userID, cursor string, pageNumber int) (map[string]any, error) {
	var lastErr error
	for attempt := 1; attempt <= pageAttempts; attempt++ {
		payload, err := e.fetcher.UserTweetsReplies(ctx, userID, cursor)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if !isRetryablePageError(err) {
			return nil, err
		}
		e.log.Warn().Int("page", pageNumber).Int("attempt", attempt).Err(err).Msg("page fetch failed, retrying")
	}
	return nil, lastErr
}
