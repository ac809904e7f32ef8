// Package history reads watch-history exports and extracts the video IDs
// and first watch times for a single calendar year.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

// SQLLayout is the DATETIME format used for watched_at_sql and published_at.
const SQLLayout = "2006-01-02 15:04:05"

const watchMarker = "watch?v="

// escapedEquals is a JSON unicode escape some exports leave in titleUrl.
const escapedEquals = `\u003d`

// ErrNotArray is returned by Decode when the export is not a JSON array.
var ErrNotArray = errors.New("watch-history JSON must be a list")

// Layouts without an offset are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	SQLLayout + ".999999999",
	"2006-01-02",
}

// Decode reads a watch-history export. Unknown fields are ignored.
func Decode(r io.Reader) ([]model.WatchHistoryEntry, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode watch history: %w", err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, ErrNotArray
	}

	var entries []model.WatchHistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode watch history: %w", err)
	}
	return entries, nil
}

// ParseTimestamp parses an ISO 8601 timestamp as found in exports and API
// responses. The offset is kept when present.
func ParseTimestamp(ts string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", ts)
}

// ToSQL reformats an ISO 8601 timestamp as a DATETIME string, or returns ""
// when ts is empty or does not parse.
func ToSQL(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return ""
	}
	return t.Format(SQLLayout)
}

// VideoIDFromURL extracts the v= parameter of a watch URL. Playlist, channel
// and other non-watch URLs report false.
func VideoIDFromURL(titleURL string) (string, bool) {
	unescaped := strings.ReplaceAll(titleURL, escapedEquals, "=")

	idx := strings.Index(unescaped, watchMarker)
	if idx < 0 {
		return "", false
	}

	id := unescaped[idx+len(watchMarker):]
	if amp := strings.IndexByte(id, '&'); amp >= 0 {
		id = id[:amp]
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// Extract keeps the entries watched in year, in input order, and collects
// their unique video IDs in first-seen order. For a video watched more than
// once, the first entry encountered supplies the watch time.
func Extract(entries []model.WatchHistoryEntry, year int) ([]model.WatchHistoryEntry, []string, map[string]model.WatchTime) {
	filtered := make([]model.WatchHistoryEntry, 0, len(entries))
	var ids []string
	watchTimes := make(map[string]model.WatchTime)

	for _, e := range entries {
		if e.Time == "" {
			continue
		}
		t, err := ParseTimestamp(e.Time)
		if err != nil || t.Year() != year {
			continue
		}
		filtered = append(filtered, e)

		id, ok := VideoIDFromURL(e.TitleURL)
		if !ok {
			continue
		}
		if _, seen := watchTimes[id]; seen {
			continue
		}

		sql := t.Format(SQLLayout)
		watchTimes[id] = model.WatchTime{WatchedAtSQL: &sql}
		ids = append(ids, id)
	}

	return filtered, ids, watchTimes
}
