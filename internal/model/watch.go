package model

import "time"

// Video types derived from duration.
const (
	TypeShort    = "Short"
	TypeLongForm = "Long-form"

	// ShortMaxSeconds is the longest duration still counted as a Short.
	ShortMaxSeconds = 90
)

// WatchHistoryEntry is one record of a watch-history export.
// Unknown fields in the export are ignored.
type WatchHistoryEntry struct {
	Time     string `json:"time"`
	TitleURL string `json:"titleUrl"`
	Title    string `json:"title"`
}

// WatchTime holds the first watch timestamp seen for a video.
type WatchTime struct {
	WatchedAtSQL *string `json:"watched_at_sql"`
}

// VideoMetadata is the enriched record cached per video ID
type VideoMetadata struct {
	VideoID        string              `json:"video_id"`
	FetchedAt      time.Time           `json:"fetched_at"`
	WatchedAtSQL   *string             `json:"watched_at_sql"`
	Snippet        Snippet             `json:"snippet"`
	ContentDetails ContentDetails      `json:"content_details"`
	Statistics     Statistics          `json:"statistics"`
	TopicDetails   map[string][]string `json:"topic_details"`
}

// Snippet carries the descriptive part of the API response.
type Snippet struct {
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	PublishedAt string `json:"published_at"` // "2006-01-02 15:04:05", or legacy RFC 3339
	CategoryID  string `json:"category_id"`
}

// ContentDetails carries the normalized duration and format flags.
type ContentDetails struct {
	DurationSeconds *int   `json:"duration_seconds"` // nil when the API duration could not be parsed
	Definition      string `json:"definition"`       // "hd" or "sd"
	Caption         string `json:"caption"`          // "true" or "false"
}

// Statistics carries engagement counters.
type Statistics struct {
	ViewCount int64 `json:"view_count"`
	LikeCount int64 `json:"like_count"`
}

// WatchRow is one merged row per watch event.
type WatchRow struct {
	Title           string     `json:"title"`
	Channel         string     `json:"channel"`
	WatchedAt       time.Time  `json:"watched_at"`
	PublishedAt     *time.Time `json:"published_at"`
	URL             string     `json:"url"`
	VideoID         string     `json:"video_id"`
	CategoryID      string     `json:"category_id"`
	Category        string     `json:"category"`
	DurationSeconds *int       `json:"duration_seconds"`
	Views           *int64     `json:"views"`
	Likes           *int64     `json:"likes"`
	Type            string     `json:"type"`
	DayOfWeek       string     `json:"day_of_week,omitempty"`
}

// VideoType classifies a duration. An unknown duration is never assumed short.
func VideoType(durationSeconds *int) string {
	if durationSeconds != nil && *durationSeconds <= ShortMaxSeconds {
		return TypeShort
	}
	return TypeLongForm
}
