package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ad-tracker/watch-history-pipeline/internal/cache"
	"github.com/ad-tracker/watch-history-pipeline/internal/metrics"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

type fakeFetcher struct {
	records map[string]*model.VideoMetadata
	err     error
	asked   [][]string
}

func (f *fakeFetcher) Fetch(_ context.Context, ids []string, watchTimes map[string]model.WatchTime) (map[string]*model.VideoMetadata, error) {
	f.asked = append(f.asked, ids)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*model.VideoMetadata)
	for _, id := range ids {
		if md, ok := f.records[id]; ok {
			md.WatchedAtSQL = watchTimes[id].WatchedAtSQL
			out[id] = md
		}
	}
	return out, nil
}

func musicVideo(id string, duration int) *model.VideoMetadata {
	return &model.VideoMetadata{
		VideoID: id,
		Snippet: model.Snippet{
			Title:       "Track " + id,
			Channel:     "Artist",
			PublishedAt: "2024-01-01 00:00:00",
			CategoryID:  "10",
		},
		ContentDetails: model.ContentDetails{DurationSeconds: intPtr(duration)},
	}
}

func TestRun_EndToEndFromCache(t *testing.T) {
	t.Parallel()

	c := cache.New(filepath.Join(t.TempDir(), "cache.json"), zap.NewNop())
	c.Put(map[string]*model.VideoMetadata{"abc123": musicVideo("abc123", 45)})

	fetcher := &fakeFetcher{}
	m := metrics.NewNop()
	runner := NewRunner(fetcher, c, 2025, DefaultOptions(), zap.NewNop(), m)

	res, err := runner.Run(context.Background(), []model.WatchHistoryEntry{
		{Time: "2025-03-01T10:15:00Z", TitleURL: "https://www.youtube.com/watch?v=abc123"},
	})
	require.NoError(t, err)

	assert.Empty(t, fetcher.asked, "cached videos are not fetched")
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.CacheHits)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")))

	require.Len(t, res.Rows, 1)
	r := res.Rows[0]
	assert.Equal(t, model.TypeShort, r.Type)
	assert.Equal(t, "Music", r.Category)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), r.WatchedAt)
	assert.Equal(t, "Saturday", r.DayOfWeek)

	md, ok := c.Get("abc123")
	require.True(t, ok)
	require.NotNil(t, md.WatchedAtSQL)
	assert.Equal(t, "2025-03-01 10:15:00", *md.WatchedAtSQL, "cache backfilled with the watch time")
}

func TestRun_FetchesOnlyMissingAndPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	c := cache.New(path, zap.NewNop())
	c.Put(map[string]*model.VideoMetadata{"old": musicVideo("old", 200)})

	fetcher := &fakeFetcher{records: map[string]*model.VideoMetadata{"new": musicVideo("new", 300)}}
	runner := NewRunner(fetcher, c, 2025, DefaultOptions(), zap.NewNop(), nil)

	res, err := runner.Run(context.Background(), []model.WatchHistoryEntry{
		{Time: "2025-05-02T08:00:00Z", TitleURL: "https://www.youtube.com/watch?v=new"},
		{Time: "2025-05-01T08:00:00Z", TitleURL: "https://www.youtube.com/watch?v=old"},
		{Time: "2025-04-30T08:00:00Z", TitleURL: "https://www.youtube.com/watch?v=gone", Title: "Removed video"},
		{Time: "2024-05-01T08:00:00Z", TitleURL: "https://www.youtube.com/watch?v=lastyear"},
	})
	require.NoError(t, err)

	require.Len(t, fetcher.asked, 1)
	assert.Equal(t, []string{"new", "gone"}, fetcher.asked[0])
	assert.Equal(t, 3, res.Entries)
	assert.Equal(t, 3, res.Videos)
	assert.Equal(t, 1, res.Fetched)

	// "gone" has no metadata and is removed as unavailable.
	assert.Equal(t, []string{"Track old", "Track new"}, titles(res.Rows))

	reloaded := cache.Load(path, zap.NewNop())
	assert.Equal(t, 2, reloaded.Len())
}

func TestRun_FetchErrorAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("no usable credentials")
	fetcher := &fakeFetcher{err: boom}
	c := cache.New(filepath.Join(t.TempDir(), "cache.json"), zap.NewNop())
	runner := NewRunner(fetcher, c, 2025, DefaultOptions(), zap.NewNop(), nil)

	res, err := runner.Run(context.Background(), []model.WatchHistoryEntry{
		{Time: "2025-03-01T10:15:00Z", TitleURL: "https://www.youtube.com/watch?v=abc"},
	})

	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestRun_CacheSaveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	c := cache.New(filepath.Join(t.TempDir(), "missing-dir", "cache.json"), zap.NewNop())
	c.Put(map[string]*model.VideoMetadata{"abc": musicVideo("abc", 100)})
	runner := NewRunner(&fakeFetcher{}, c, 2025, DefaultOptions(), zap.NewNop(), nil)

	res, err := runner.Run(context.Background(), []model.WatchHistoryEntry{
		{Time: "2025-03-01T10:15:00Z", TitleURL: "https://www.youtube.com/watch?v=abc"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}

func TestRun_LegacyCacheFileServesRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	legacy := `[{
		"video_id": "abc123",
		"fetched_at": "2025-03-02T08:00:00+00:00",
		"watched_at_sql": "2025-03-01 10:15:00",
		"snippet": {"title": "Song", "channelTitle": "Artist", "publishedAt": "2024-01-01T08:30:00Z", "categoryId": "10"},
		"contentDetails": {"duration_seconds": 45, "definition": "hd", "caption": "false"},
		"statistics": {"viewCount": 1000, "likeCount": 50},
		"topicDetails": {}
	}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	fetcher := &fakeFetcher{}
	runner := NewRunner(fetcher, cache.Load(path, zap.NewNop()), 2025, DefaultOptions(), zap.NewNop(), nil)

	res, err := runner.Run(context.Background(), []model.WatchHistoryEntry{
		{Time: "2025-03-01T10:15:00Z", TitleURL: "https://www.youtube.com/watch?v=abc123"},
	})
	require.NoError(t, err)

	assert.Empty(t, fetcher.asked)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Artist", res.Rows[0].Channel)
	require.NotNil(t, res.Rows[0].DurationSeconds)
	assert.Equal(t, 45, *res.Rows[0].DurationSeconds)
	require.NotNil(t, res.Rows[0].PublishedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), *res.Rows[0].PublishedAt)
}
