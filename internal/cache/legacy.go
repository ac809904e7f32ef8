package cache

import (
	"encoding/json"
	"time"

	"github.com/ad-tracker/watch-history-pipeline/internal/history"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

// legacyRecord is the camelCase layout written by the Python tool this cache
// file is shared with. Its snippet carries either publishedAt (ISO 8601) or
// the already converted publishedAt_sql.
type legacyRecord struct {
	VideoID      string  `json:"video_id"`
	FetchedAt    string  `json:"fetched_at"`
	WatchedAtSQL *string `json:"watched_at_sql"`
	Snippet      struct {
		Title          string  `json:"title"`
		ChannelTitle   string  `json:"channelTitle"`
		PublishedAt    *string `json:"publishedAt"`
		PublishedAtSQL string  `json:"publishedAt_sql"`
		CategoryID     string  `json:"categoryId"`
	} `json:"snippet"`
	ContentDetails struct {
		DurationSeconds *int   `json:"duration_seconds"`
		Definition      string `json:"definition"`
		Caption         string `json:"caption"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount int64 `json:"viewCount"`
		LikeCount int64 `json:"likeCount"`
	} `json:"statistics"`
	TopicDetails map[string][]string `json:"topicDetails"`
}

// recordKeys holds the top-level keys only the legacy layout uses.
type recordKeys struct {
	ContentDetails json.RawMessage `json:"contentDetails"`
	TopicDetails   json.RawMessage `json:"topicDetails"`
}

func (k recordKeys) legacy() bool {
	return k.ContentDetails != nil || k.TopicDetails != nil
}

// decodeRecord reads one cache entry in either layout.
func decodeRecord(raw json.RawMessage) (*model.VideoMetadata, error) {
	var keys recordKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}

	if !keys.legacy() {
		var md model.VideoMetadata
		if err := json.Unmarshal(raw, &md); err != nil {
			return nil, err
		}
		return &md, nil
	}

	var lr legacyRecord
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, err
	}
	return lr.toMetadata(), nil
}

// toMetadata converts a legacy record. A raw publishedAt is kept as is so
// Backfill reformats it; a missing one becomes publishedAt_sql.
func (lr legacyRecord) toMetadata() *model.VideoMetadata {
	published := lr.Snippet.PublishedAtSQL
	if lr.Snippet.PublishedAt != nil {
		published = *lr.Snippet.PublishedAt
	}

	var fetchedAt time.Time
	if t, err := history.ParseTimestamp(lr.FetchedAt); err == nil {
		fetchedAt = t
	}

	return &model.VideoMetadata{
		VideoID:      lr.VideoID,
		FetchedAt:    fetchedAt,
		WatchedAtSQL: lr.WatchedAtSQL,
		Snippet: model.Snippet{
			Title:       lr.Snippet.Title,
			Channel:     lr.Snippet.ChannelTitle,
			PublishedAt: published,
			CategoryID:  lr.Snippet.CategoryID,
		},
		ContentDetails: model.ContentDetails{
			DurationSeconds: lr.ContentDetails.DurationSeconds,
			Definition:      lr.ContentDetails.Definition,
			Caption:         lr.ContentDetails.Caption,
		},
		Statistics: model.Statistics{
			ViewCount: lr.Statistics.ViewCount,
			LikeCount: lr.Statistics.LikeCount,
		},
		TopicDetails: lr.TopicDetails,
	}
}
