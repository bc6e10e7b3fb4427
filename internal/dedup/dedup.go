// Package dedup decides whether a discovered handle should be
// processed again, based on what the profile store already knows and
// how long ago it was last touched.
package dedup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"driftnet/internal/config"
	"driftnet/internal/logging"
	"driftnet/internal/metrics"
	"driftnet/internal/profilestore"
)

// Decision outcomes. Exactly one applies per handle.
const (
	OutcomeNew                 = "new"
	OutcomePermanentlyExcluded = "permanently excluded"
	OutcomeTooYoung            = "too young to recheck"
	OutcomeSeenRecently        = "seen recently"
	OutcomeEligible            = "eligible for reprocess"
)

// Decision is the answer for one handle: whether to process it, and
// why not when skipped.
type Decision struct {
	Handle  string
	Process bool
	Outcome string
}

// Service applies the dedup policy on top of a profile store. Every
// consulted handle gets its discovery edge recorded regardless of
// outcome.
type Service struct {
	store         profilestore.Store
	recencyWindow time.Duration
	minAccountAge time.Duration
	log           zerolog.Logger
	nowFn         func() time.Time
}

func New(store profilestore.Store, cfg config.DedupConfig) *Service {
	return &Service{
		store:         store,
		recencyWindow: time.Duration(cfg.RecencyWindowDays) * 24 * time.Hour,
		minAccountAge: time.Duration(cfg.MinAccountAgeDays) * 24 * time.Hour,
		log:           logging.NewLogger("dedup"),
		nowFn:         time.Now,
	}
}

// Decide classifies a handle. accountAge is the age of the account
// itself when known, nil when the discovery payload had no creation
// date; an unknown age never blocks on the minimum-age rule.
//
// Known handles are skipped when their category marks them terminal,
// when the account is younger than the minimum age, or when the row
// was updated inside the recency window. A skip never bumps the row's
// last-updated date, so a profile cannot stay perpetually "recent"
// just by being rediscovered.
func (s *Service) Decide(ctx context.Context, handle, discoveredBy string, accountAge *time.Duration) (Decision, error) {
	rec, err := s.store.FindByHandle(ctx, handle)
	if err != nil {
		return Decision{}, err
	}
	if rec == nil {
		return s.finish(handle, "", Decision{Handle: handle, Process: true, Outcome: OutcomeNew})
	}

	// Known handle: keep the edge even when we skip.
	if discoveredBy != "" {
		if err := s.store.AddRelationship(ctx, handle, discoveredBy, s.nowFn()); err != nil {
			return Decision{}, err
		}
	}

	if rec.Category != "" {
		return s.finish(handle, discoveredBy, Decision{Handle: handle, Outcome: OutcomePermanentlyExcluded})
	}
	if accountAge != nil && *accountAge < s.minAccountAge {
		return s.finish(handle, discoveredBy, Decision{Handle: handle, Outcome: OutcomeTooYoung})
	}
	if s.nowFn().Sub(rec.LastUpdated) < s.recencyWindow {
		return s.finish(handle, discoveredBy, Decision{Handle: handle, Outcome: OutcomeSeenRecently})
	}
	return s.finish(handle, discoveredBy, Decision{Handle: handle, Process: true, Outcome: OutcomeEligible})
}

func (s *Service) finish(handle, discoveredBy string, d Decision) (Decision, error) {
	metrics.IncDecision(d.Outcome)
	s.log.Debug().
		Str("handle", handle).
		Str("discovered_by", discoveredBy).
		Str("outcome", d.Outcome).
		Bool("process", d.Process).
		Msg("dedup decision")
	return d, nil
}

// Record upserts a processed handle and its discovery edge. It is the
// write half of the Decide/Record pair: call it after a handle was
// actually processed (or on first sight).
func (s *Service) Record(ctx context.Context, handle, externalRef, category, discoveredBy string) error {
	now := s.nowFn()
	if err := s.store.RecordOrUpdate(ctx, handle, externalRef, category, now); err != nil {
		return err
	}
	if discoveredBy == "" {
		return nil
	}
	return s.store.AddRelationship(ctx, handle, discoveredBy, now)
}
