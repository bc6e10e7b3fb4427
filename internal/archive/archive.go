// Package archive writes the fetched data to disk: the raw page
// document (rewritten after every page so progress survives a crash)
// and the cleaned and slim analysis outputs derived from it.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"driftnet/internal/model"
)

// Output filenames carry an Eastern-time timestamp; the ingestion has
// always been operated on that clock and downstream tooling sorts on
// the filename.
var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Timestamp formats now for use in filenames.
func Timestamp(now time.Time) string {
	return now.In(eastern).Format("2006-01-02_15-04-05")
}

// FetchedAt formats now for the fetchedAt document field.
func FetchedAt(now time.Time) string {
	return now.In(eastern).Format(time.RFC3339)
}

// CleanUsername strips a leading @ and surrounding whitespace.
func CleanUsername(username string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(username), "@"))
}

// Paths holds the three output files of one run, sharing a timestamp
// so they sort together.
type Paths struct {
	Raw   string
	Clean string
	Slim  string
}

// BuildPaths derives the output paths for a run and creates the
// output directory.
func BuildPaths(dir, username, timestamp string) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, err
	}
	base := fmt.Sprintf("%s_%s", username, timestamp)
	return Paths{
		Raw:   filepath.Join(dir, base+".json"),
		Clean: filepath.Join(dir, base+"_clean.json"),
		Slim:  filepath.Join(dir, base+"_clean_slim.json"),
	}, nil
}

// WriteRaw rewrites the raw document with the pages collected so far.
// Called after every page, so a failed run keeps everything fetched
// up to the failure.
func WriteRaw(path string, doc model.RawDocument) error {
	doc.TweetsAndReplies.PageCount = len(doc.TweetsAndReplies.Pages)
	return writeJSON(path, doc)
}

// LoadRaw reads a previously written raw document, for the
// backfill-only and process-only modes.
func LoadRaw(path string) (model.RawDocument, error) {
	var doc model.RawDocument
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("parse raw document %s: %w", path, err)
	}
	return doc, nil
}

// TimestampFromRawPath recovers the filename timestamp of an existing
// raw document so the derived outputs sort next to it.
func TimestampFromRawPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.Index(name, "_"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
