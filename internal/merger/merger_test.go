package merger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

type mapLookup map[string]*model.VideoMetadata

func (m mapLookup) Get(id string) (*model.VideoMetadata, bool) {
	md, ok := m[id]
	return md, ok
}

func intPtr(i int) *int { return &i }

func TestCategoryName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want string
	}{
		{"10", "Music"},
		{"27", "Education"},
		{"44", "Trailers"},
		{"", "Unknown"},
		{"999", "Unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryName(tt.id), "id %q", tt.id)
	}
}

func TestMerge_WithMetadata(t *testing.T) {
	t.Parallel()

	lookup := mapLookup{
		"abc123": {
			VideoID: "abc123",
			Snippet: model.Snippet{
				Title:       "Song",
				Channel:     "Artist",
				PublishedAt: "2024-11-05 08:30:00",
				CategoryID:  "10",
			},
			ContentDetails: model.ContentDetails{DurationSeconds: intPtr(45)},
			Statistics:     model.Statistics{ViewCount: 1000, LikeCount: 50},
		},
	}
	entries := []model.WatchHistoryEntry{{
		Time:     "2025-03-01T10:15:00Z",
		TitleURL: "https://www.youtube.com/watch?v=abc123&t=5s",
		Title:    "Watched Song",
	}}

	rows := Merge(entries, lookup)
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, "Song", row.Title)
	assert.Equal(t, "Artist", row.Channel)
	assert.True(t, time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC).Equal(row.WatchedAt))
	require.NotNil(t, row.PublishedAt)
	assert.True(t, time.Date(2024, 11, 5, 8, 30, 0, 0, time.UTC).Equal(*row.PublishedAt))
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", row.URL)
	assert.Equal(t, "abc123", row.VideoID)
	assert.Equal(t, "10", row.CategoryID)
	assert.Equal(t, "Music", row.Category)
	require.NotNil(t, row.DurationSeconds)
	assert.Equal(t, 45, *row.DurationSeconds)
	require.NotNil(t, row.Views)
	assert.Equal(t, int64(1000), *row.Views)
	require.NotNil(t, row.Likes)
	assert.Equal(t, int64(50), *row.Likes)
	assert.Equal(t, model.TypeShort, row.Type)
}

func TestMerge_MissingMetadataFallsBack(t *testing.T) {
	t.Parallel()

	entries := []model.WatchHistoryEntry{{
		Time:     "2025-03-01T10:15:00Z",
		TitleURL: "https://www.youtube.com/watch?v=gone",
		Title:    "Watched a video that has been removed",
	}}

	rows := Merge(entries, mapLookup{})
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, "Watched a video that has been removed", row.Title)
	assert.Empty(t, row.Channel)
	assert.Nil(t, row.DurationSeconds)
	assert.Nil(t, row.PublishedAt)
	assert.Nil(t, row.Views)
	assert.Equal(t, UnknownCategory, row.Category)
	assert.Equal(t, model.TypeLongForm, row.Type, "unknown duration is never assumed short")
}

func TestMerge_SkipsEntriesWithoutVideoID(t *testing.T) {
	t.Parallel()

	entries := []model.WatchHistoryEntry{
		{Time: "2025-03-01T10:00:00Z", TitleURL: "https://www.youtube.com/playlist?list=PL1"},
		{Time: "2025-03-01T11:00:00Z", TitleURL: "https://www.youtube.com/watch?v=b"},
		{Time: "2025-03-01T12:00:00Z", TitleURL: "https://www.youtube.com/watch?v=a"},
	}

	rows := Merge(entries, mapLookup{})
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].VideoID)
	assert.Equal(t, "a", rows[1].VideoID)
}

func TestMerge_UnknownDurationIsLongForm(t *testing.T) {
	t.Parallel()

	lookup := mapLookup{"x": {VideoID: "x", Snippet: model.Snippet{Title: "T", Channel: "C", CategoryID: "77"}}}
	rows := Merge([]model.WatchHistoryEntry{{TitleURL: "https://www.youtube.com/watch?v=x"}}, lookup)

	require.Len(t, rows, 1)
	assert.Equal(t, model.TypeLongForm, rows[0].Type)
	assert.Equal(t, UnknownCategory, rows[0].Category)
	assert.True(t, rows[0].WatchedAt.IsZero())
}

func TestMerge_DoesNotAliasCache(t *testing.T) {
	t.Parallel()

	md := &model.VideoMetadata{VideoID: "x", ContentDetails: model.ContentDetails{DurationSeconds: intPtr(100)}}
	rows := Merge([]model.WatchHistoryEntry{{TitleURL: "https://www.youtube.com/watch?v=x"}}, mapLookup{"x": md})

	*rows[0].DurationSeconds = 1
	assert.Equal(t, 100, *md.ContentDetails.DurationSeconds)
}
