// Package pipeline drives a watch-history run and holds the cleaning stages
// applied to merged rows.
//
// Every stage returns a new slice and leaves its input untouched, including
// the values behind pointer fields.
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/watch-history-pipeline/internal/metrics"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

// Defaults for the cleaning thresholds, in seconds.
const (
	DefaultLiveThresholdSeconds = 3600
	DefaultMaxDurationSeconds   = 14400
)

const musicCategory = "music"

// Stage is one named cleaning step.
type Stage struct {
	Name  string
	Apply func([]model.WatchRow) []model.WatchRow
}

// Options configures Clean.
type Options struct {
	LiveThresholdSeconds int
	MaxDurationSeconds   int
	Logger               *zap.Logger
	Metrics              *metrics.Metrics
}

// DefaultOptions returns the standard thresholds with no-op logging.
func DefaultOptions() Options {
	return Options{
		LiveThresholdSeconds: DefaultLiveThresholdSeconds,
		MaxDurationSeconds:   DefaultMaxDurationSeconds,
	}
}

// Stages returns the cleaning steps in the order they run. A threshold <= 0
// falls back to its default.
func Stages(opts Options) []Stage {
	liveThreshold := opts.LiveThresholdSeconds
	if liveThreshold <= 0 {
		liveThreshold = DefaultLiveThresholdSeconds
	}
	maxDuration := opts.MaxDurationSeconds
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDurationSeconds
	}

	return []Stage{
		{Name: "deduplicate", Apply: Deduplicate},
		{Name: "remove_live_streams", Apply: RemoveLiveStreams(liveThreshold)},
		{Name: "remove_unavailable", Apply: RemoveUnavailable},
		{Name: "cap_and_sort", Apply: CapAndSort(maxDuration)},
		{Name: "floor_to_hour", Apply: FloorToHour},
		{Name: "day_of_week", Apply: TagDayOfWeek},
	}
}

// Clean runs every stage in order.
func Clean(rows []model.WatchRow, opts Options) []model.WatchRow {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNop()
	}

	for i, stage := range Stages(opts) {
		before := len(rows)
		rows = stage.Apply(rows)
		dropped := before - len(rows)

		m.RowsDroppedTotal.WithLabelValues(stage.Name).Add(float64(dropped))
		logger.Info(fmt.Sprintf("[%d/%d] %s", firstStageStep+i, totalSteps, stage.Name),
			zap.Int("rows_in", before),
			zap.Int("rows_out", len(rows)))
	}

	m.FinalRows.Set(float64(len(rows)))
	return rows
}

// Deduplicate keeps the latest watch of each non-music title. Music rows are
// all kept since repeat listens count.
func Deduplicate(rows []model.WatchRow) []model.WatchRow {
	var music, other []model.WatchRow
	for _, r := range rows {
		if normalize(r.Category) == musicCategory {
			music = append(music, r)
		} else {
			other = append(other, r)
		}
	}

	sortByWatchedAt(other)

	lastIdx := make(map[string]int, len(other))
	for i, r := range other {
		lastIdx[normalize(r.Title)] = i
	}

	out := make([]model.WatchRow, 0, len(music)+len(lastIdx))
	out = append(out, music...)
	for i, r := range other {
		if lastIdx[normalize(r.Title)] == i {
			out = append(out, r)
		}
	}

	sortByWatchedAt(out)
	return out
}

// RemoveLiveStreams drops rows whose title mentions live or stream and whose
// duration exceeds thresholdSeconds.
func RemoveLiveStreams(thresholdSeconds int) func([]model.WatchRow) []model.WatchRow {
	return func(rows []model.WatchRow) []model.WatchRow {
		return filter(rows, func(r model.WatchRow) bool {
			title := strings.ToLower(r.Title)
			isLive := strings.Contains(title, "live") || strings.Contains(title, "stream")
			tooLong := r.DurationSeconds != nil && *r.DurationSeconds > thresholdSeconds
			return !(isLive && tooLong)
		})
	}
}

// RemoveUnavailable drops rows the catalog could not enrich.
func RemoveUnavailable(rows []model.WatchRow) []model.WatchRow {
	return filter(rows, func(r model.WatchRow) bool {
		return r.Channel != "" && r.DurationSeconds != nil
	})
}

// CapAndSort clamps durations to maxSeconds and orders rows by watch time.
func CapAndSort(maxSeconds int) func([]model.WatchRow) []model.WatchRow {
	return func(rows []model.WatchRow) []model.WatchRow {
		out := make([]model.WatchRow, len(rows))
		for i, r := range rows {
			if r.DurationSeconds != nil && *r.DurationSeconds > maxSeconds {
				capped := maxSeconds
				r.DurationSeconds = &capped
			}
			out[i] = r
		}
		sortByWatchedAt(out)
		return out
	}
}

// FloorToHour converts timestamps to UTC and truncates them to the hour.
func FloorToHour(rows []model.WatchRow) []model.WatchRow {
	out := make([]model.WatchRow, len(rows))
	for i, r := range rows {
		r.WatchedAt = r.WatchedAt.UTC().Truncate(time.Hour)
		if r.PublishedAt != nil {
			p := r.PublishedAt.UTC().Truncate(time.Hour)
			r.PublishedAt = &p
		}
		out[i] = r
	}
	return out
}

// TagDayOfWeek sets the English weekday name of each watch.
func TagDayOfWeek(rows []model.WatchRow) []model.WatchRow {
	out := make([]model.WatchRow, len(rows))
	for i, r := range rows {
		if !r.WatchedAt.IsZero() {
			r.DayOfWeek = r.WatchedAt.Weekday().String()
		}
		out[i] = r
	}
	return out
}

func filter(rows []model.WatchRow, keep func(model.WatchRow) bool) []model.WatchRow {
	out := make([]model.WatchRow, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sortByWatchedAt sorts in place, stable, with unknown times last.
func sortByWatchedAt(rows []model.WatchRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].WatchedAt, rows[j].WatchedAt
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		default:
			return a.Before(b)
		}
	})
}
