// Package jobs wires the client, pagination engine, archive and dedup
// store into the operations the CLI exposes.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"driftnet/internal/archive"
	"driftnet/internal/config"
	"driftnet/internal/dedup"
	"driftnet/internal/logging"
	"driftnet/internal/metrics"
	"driftnet/internal/model"
	"driftnet/internal/paginate"
	"driftnet/internal/profilestore"
	"driftnet/internal/rapidapi"
)

// Runner owns the wired components for one process.
type Runner struct {
	cfg    config.Config
	client *rapidapi.Client
	engine *paginate.Engine
	store  profilestore.Store
	dedup  *dedup.Service
	log    zerolog.Logger
	nowFn  func() time.Time
}

func New(cfg config.Config, client *rapidapi.Client, store profilestore.Store) *Runner {
	return &Runner{
		cfg:    cfg,
		client: client,
		engine: paginate.New(client, cfg.Backfill.BatchSize, cfg.Backfill.Concurrency),
		store:  store,
		dedup:  dedup.New(store, cfg.Dedup),
		log:    logging.NewLogger("jobs"),
		nowFn:  time.Now,
	}
}

// RunFetch is the full flow: resolve the user, paginate with
// write-ahead raw saves, backfill referenced tweets, and write the
// clean and slim outputs.
func (r *Runner) RunFetch(ctx context.Context, username string) error {
	return r.fetch(ctx, username, true)
}

// RunPagesOnly paginates and saves the raw document, skipping
// backfill and derived outputs.
func (r *Runner) RunPagesOnly(ctx context.Context, username string) error {
	return r.fetch(ctx, username, false)
}

func (r *Runner) fetch(ctx context.Context, username string, derive bool) error {
	start := r.nowFn()
	metrics.FetchRuns.Inc()
	username = archive.CleanUsername(username)

	userID, userPayload, err := r.client.UserResult(ctx, username)
	if err != nil {
		metrics.FetchErrors.Inc()
		return fmt.Errorf("resolve @%s: %w", username, err)
	}
	r.log.Info().Str("username", username).Str("user_id", userID).Msg("resolved user")

	paths, err := archive.BuildPaths(r.cfg.Output.Dir, username, archive.Timestamp(start))
	if err != nil {
		metrics.FetchErrors.Inc()
		return err
	}
	doc := model.RawDocument{
		Username:  username,
		UserID:    userID,
		FetchedAt: archive.FetchedAt(start),
		User:      userPayload,
	}

	pages, err := r.engine.Run(ctx, userID, func(all []model.Page, page model.Page) {
		doc.TweetsAndReplies.Pages = all
		if werr := archive.WriteRaw(paths.Raw, doc); werr != nil {
			r.log.Error().Err(werr).Msg("write-ahead raw save failed")
			return
		}
		cursor := page.RequestedCursor
		if cursor == "" {
			cursor = "start"
		}
		r.log.Info().Int("page", page.PageNumber).Str("cursor", cursor).Str("file", paths.Raw).Msg("saved page")
	})
	if err != nil {
		metrics.FetchErrors.Inc()
		return err
	}
	doc.TweetsAndReplies.Pages = pages
	if err := archive.WriteRaw(paths.Raw, doc); err != nil {
		metrics.FetchErrors.Inc()
		return err
	}

	if derive {
		if err := r.deriveOutputs(ctx, doc, paths, true); err != nil {
			metrics.FetchErrors.Inc()
			return err
		}
	}
	metrics.ObserveFetchDuration(start)
	return nil
}

// RunBackfillFromRaw re-runs backfill and output assembly on an
// existing raw document.
func (r *Runner) RunBackfillFromRaw(ctx context.Context, rawPath string) error {
	return r.reprocess(ctx, rawPath, true)
}

// RunProcessOnly rebuilds the clean and slim outputs from an existing
// raw document without touching the API.
func (r *Runner) RunProcessOnly(ctx context.Context, rawPath string) error {
	return r.reprocess(ctx, rawPath, false)
}

func (r *Runner) reprocess(ctx context.Context, rawPath string, backfill bool) error {
	doc, err := archive.LoadRaw(rawPath)
	if err != nil {
		return err
	}
	if doc.Username == "" || doc.UserID == "" {
		return fmt.Errorf("raw document %s has no username or user id", rawPath)
	}
	paths, err := archive.BuildPaths(r.cfg.Output.Dir, doc.Username, archive.TimestampFromRawPath(rawPath))
	if err != nil {
		return err
	}
	paths.Raw = rawPath
	return r.deriveOutputs(ctx, doc, paths, backfill)
}

func (r *Runner) deriveOutputs(ctx context.Context, doc model.RawDocument, paths archive.Paths, backfill bool) error {
	pages := doc.TweetsAndReplies.Pages
	hydrated, missing := paginate.DeriveMissing(pages)

	fetched := map[string]model.Tweet{}
	if backfill && len(missing) > 0 {
		r.log.Info().Int("missing", len(missing)).Str("username", doc.Username).Msg("backfilling referenced tweets")
		res := r.engine.Backfill(ctx, missing)
		fetched = res.Fetched
	}

	clean := archive.AssembleClean(doc.Username, doc.UserID, doc.FetchedAt, paths.Raw, pages, hydrated, fetched)
	if err := archive.WriteClean(paths, clean); err != nil {
		return err
	}
	r.log.Info().
		Int("tweets", clean.Summary.TotalTweets).
		Int("threads", len(clean.Threads)).
		Str("clean", paths.Clean).
		Str("slim", paths.Slim).
		Msg("saved derived outputs")
	return nil
}

// RunDiscovery walks the newest accounts a seed handle follows, runs
// each through the dedup policy, and records the ones to process.
// Decisions for every inspected handle are returned.
func (r *Runner) RunDiscovery(ctx context.Context, seed string, count int) ([]dedup.Decision, error) {
	seed = archive.CleanUsername(seed)
	ids, err := r.client.CollectFollowingIDs(ctx, seed, count)
	if err != nil {
		return nil, fmt.Errorf("collect followings of @%s: %w", seed, err)
	}
	users := r.client.FetchUsersByIDs(ctx, ids)
	r.log.Info().Str("seed", seed).Int("ids", len(ids)).Int("users", len(users)).Msg("discovery lookup complete")

	var decisions []dedup.Decision
	for _, u := range users {
		if u.ScreenName == "" {
			continue
		}
		d, err := r.dedup.Decide(ctx, u.ScreenName, seed, accountAge(u.CreatedAt, r.nowFn()))
		if err != nil {
			return decisions, err
		}
		if d.Process {
			if err := r.dedup.Record(ctx, u.ScreenName, "", "", seed); err != nil {
				return decisions, err
			}
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// accountAge parses the legacy created_at format; nil when absent or
// unparseable, so age rules do not misfire on bad data.
func accountAge(createdAt string, now time.Time) *time.Duration {
	if createdAt == "" {
		return nil
	}
	t, err := time.Parse("Mon Jan 02 15:04:05 -0700 2006", createdAt)
	if err != nil {
		return nil
	}
	age := now.Sub(t)
	return &age
}

// Sources lists who discovered a handle.
func (r *Runner) Sources(ctx context.Context, handle string) ([]model.SourceRelationship, error) {
	return r.store.RelationshipsFor(ctx, archive.CleanUsername(handle))
}

// Migrate collapses case-variant profile rows left over from older
// databases.
func (r *Runner) Migrate(ctx context.Context) (int, error) {
	return r.store.MergeCaseVariants(ctx)
}
