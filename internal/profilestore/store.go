// Package profilestore persists processed profiles and the discovery
// edges between them. Handle comparisons are case-insensitive in both
// backends.
package profilestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"driftnet/internal/config"
	"driftnet/internal/model"
)

// Store is the persistence surface the dedup service runs on.
type Store interface {
	// FindByHandle returns the profile row for a handle, ignoring case,
	// or nil when none exists.
	FindByHandle(ctx context.Context, handle string) (*model.ProfileRecord, error)

	// RecordOrUpdate inserts a new profile or refreshes an existing one.
	// On update, last_updated moves to now and external ref / category
	// fill in only when the stored value is still empty.
	RecordOrUpdate(ctx context.Context, handle, externalRef, category string, now time.Time) error

	// AddRelationship records one (handle, discoveredBy) edge. Repeat
	// edges are ignored.
	AddRelationship(ctx context.Context, handle, discoveredBy string, when time.Time) error

	// RelationshipsFor lists the discovery edges pointing at a handle.
	RelationshipsFor(ctx context.Context, handle string) ([]model.SourceRelationship, error)

	// MergeCaseVariants collapses rows that differ only by handle case
	// into one canonical row each, repointing relationships. It returns
	// the number of variant rows removed.
	MergeCaseVariants(ctx context.Context) (int, error)

	Close() error
}

// Open builds a store for the configured driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(cfg.DSN)
	case "postgres":
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// mergePlan describes collapsing one case-variant group: the variants
// are deleted, their edges repointed, and the canonical row rewritten
// with the merged field values.
type mergePlan struct {
	canonical model.ProfileRecord
	variants  []string // handles to delete, canonical excluded
}

// planMerges groups rows by lowercased handle and picks a canonical
// row per group: a row with an external ref wins, then the earliest
// first-discovered date, then the most recent update. Merged fields
// take the widest date range, the canonical-first non-empty ref, and
// the category aggregated over the whole group with Profile winning
// over Project.
func planMerges(rows []model.ProfileRecord) []mergePlan {
	groups := map[string][]model.ProfileRecord{}
	var order []string
	for _, r := range rows {
		key := strings.ToLower(r.Handle)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}
	sort.Strings(order)

	var plans []mergePlan
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if (a.ExternalRef != "") != (b.ExternalRef != "") {
				return a.ExternalRef != ""
			}
			if !a.FirstDiscovered.Equal(b.FirstDiscovered) {
				return a.FirstDiscovered.Before(b.FirstDiscovered)
			}
			return a.LastUpdated.After(b.LastUpdated)
		})

		merged := group[0]
		var variants []string
		for _, r := range group[1:] {
			variants = append(variants, r.Handle)
			if r.FirstDiscovered.Before(merged.FirstDiscovered) {
				merged.FirstDiscovered = r.FirstDiscovered
			}
			if r.LastUpdated.After(merged.LastUpdated) {
				merged.LastUpdated = r.LastUpdated
			}
			if merged.ExternalRef == "" {
				merged.ExternalRef = r.ExternalRef
			}
		}
		merged.Category = mergeCategory(group)
		plans = append(plans, mergePlan{canonical: merged, variants: variants})
	}
	return plans
}

// mergeCategory aggregates the category over a variant group: any row
// marked Profile makes the merged row a Profile, else any Project
// makes it a Project, else it stays unclassified.
func mergeCategory(group []model.ProfileRecord) string {
	category := ""
	for _, r := range group {
		switch strings.ToLower(r.Category) {
		case "profile":
			return "Profile"
		case "project":
			category = "Project"
		}
	}
	return category
}
