// Package export serializes the cleaned table.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ad-tracker/watch-history-pipeline/internal/history"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned for formats other than csv and json.
var ErrUnknownFormat = errors.New("unknown output format")

// Header is the CSV column order.
var Header = []string{
	"title", "channel", "watched_at", "published_at", "url", "video_id",
	"category_id", "category", "duration_seconds", "views", "likes", "type",
	"day_of_week",
}

// ValidateFormat reports whether Write accepts format.
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case FormatCSV, FormatJSON:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Write encodes rows in the named format.
func Write(w io.Writer, rows []model.WatchRow, format string) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatJSON:
		return WriteJSON(w, rows)
	default:
		return ValidateFormat(format)
	}
}

// WriteCSV writes a header line followed by one line per row. Unknown values
// are empty cells.
func WriteCSV(w io.Writer, rows []model.WatchRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i, r := range rows {
		record := []string{
			r.Title,
			r.Channel,
			formatTime(&r.WatchedAt),
			formatTime(r.PublishedAt),
			r.URL,
			r.VideoID,
			r.CategoryID,
			r.Category,
			formatInt(r.DurationSeconds),
			formatInt64(r.Views),
			formatInt64(r.Likes),
			r.Type,
			r.DayOfWeek,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []model.WatchRow) error {
	if rows == nil {
		rows = []model.WatchRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode json rows: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(history.SQLLayout)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
