// Package fetcher enriches video IDs with YouTube metadata, rotating API
// keys as their daily quota runs out.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/youtube/v3"

	"github.com/ad-tracker/watch-history-pipeline/internal/history"
	"github.com/ad-tracker/watch-history-pipeline/internal/keystore"
	"github.com/ad-tracker/watch-history-pipeline/internal/metrics"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
	ytclient "github.com/ad-tracker/watch-history-pipeline/internal/youtube"
)

// ErrNoUsableCredentials is returned when every configured key is exhausted
// for today, or none is configured.
var ErrNoUsableCredentials = errors.New("no usable credentials: all API keys are exhausted or missing")

// VideoLister performs one videos.list call with the given key.
type VideoLister interface {
	ListVideos(ctx context.Context, apiKey string, videoIDs []string) ([]*youtube.Video, error)
}

// KeyStore is the subset of keystore.Store used during a fetch.
type KeyStore interface {
	UsableKeys(keys []string) []string
	MarkExhausted(key string) error
}

var _ KeyStore = (*keystore.Store)(nil)

// Fetcher batches lookups against the catalog API.
type Fetcher struct {
	lister    VideoLister
	store     KeyStore
	keys      []string
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a Fetcher for the configured keys.
func New(lister VideoLister, store KeyStore, keys []string, batchSize int, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Fetcher{
		lister:    lister,
		store:     store,
		keys:      keys,
		batchSize: batchSize,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// keyRing is the live usable-key list for one Fetch call. Keys removed after
// a quota response stay removed for later batches.
type keyRing struct {
	keys []string
}

func (r *keyRing) remove(key string) {
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			return
		}
	}
}

// Fetch looks up ids in batches and returns normalized metadata keyed by
// video ID. Videos the API does not return (deleted, private) are absent
// from the result. A batch that no key can serve fails the whole call.
func (f *Fetcher) Fetch(ctx context.Context, ids []string, watchTimes map[string]model.WatchTime) (map[string]*model.VideoMetadata, error) {
	results := make(map[string]*model.VideoMetadata, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	ring := &keyRing{keys: f.store.UsableKeys(f.keys)}
	batches := ytclient.BatchVideoIDs(ids, f.batchSize)

	f.logger.Info("fetching video metadata",
		zap.Int("videos", len(ids)),
		zap.Int("batches", len(batches)),
		zap.Int("usable_keys", len(ring.keys)))

	for i, batch := range batches {
		videos, err := f.queryBatch(ctx, ring, batch)
		if err != nil {
			f.metrics.BatchesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		f.metrics.BatchesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

		for _, v := range videos {
			results[v.Id] = f.normalize(v, watchTimes)
		}

		f.logger.Debug("batch fetched",
			zap.Int("batch", i+1),
			zap.Int("requested", len(batch)),
			zap.Int("returned", len(videos)))
	}

	return results, nil
}

// queryBatch tries each live key in order until one answers.
func (f *Fetcher) queryBatch(ctx context.Context, ring *keyRing, batch []string) ([]*youtube.Video, error) {
	var lastTransportErr error

	// Iterate over a snapshot; ring.keys shrinks as keys are exhausted.
	candidates := append([]string(nil), ring.keys...)
	for _, key := range candidates {
		videos, err := f.lister.ListVideos(ctx, key, batch)
		if err == nil {
			return videos, nil
		}

		if ytclient.IsQuotaError(err) {
			f.metrics.KeyExhaustionsTotal.Inc()
			ring.remove(key)
			if markErr := f.store.MarkExhausted(key); markErr != nil {
				f.logger.Warn("failed to persist key exhaustion", zap.Error(markErr))
			}
			f.logger.Warn("api key quota exhausted, rotating",
				zap.String("key_hash", keystore.HashKey(key)[:12]),
				zap.Int("remaining_keys", len(ring.keys)))
			continue
		}

		f.metrics.TransportErrorsTotal.Inc()
		lastTransportErr = err
		f.logger.Warn("api call failed, trying next key",
			zap.String("key_hash", keystore.HashKey(key)[:12]),
			zap.Error(err))
	}

	if lastTransportErr != nil {
		return nil, lastTransportErr
	}
	return nil, ErrNoUsableCredentials
}

func (f *Fetcher) normalize(v *youtube.Video, watchTimes map[string]model.WatchTime) *model.VideoMetadata {
	md := &model.VideoMetadata{
		VideoID:      v.Id,
		FetchedAt:    f.now().UTC(),
		TopicDetails: map[string][]string{},
	}

	if wt, ok := watchTimes[v.Id]; ok {
		md.WatchedAtSQL = wt.WatchedAtSQL
	}

	if v.Snippet != nil {
		md.Snippet = model.Snippet{
			Title:       v.Snippet.Title,
			Channel:     v.Snippet.ChannelTitle,
			PublishedAt: history.ToSQL(v.Snippet.PublishedAt),
			CategoryID:  v.Snippet.CategoryId,
		}
	}

	if v.ContentDetails != nil {
		md.ContentDetails = model.ContentDetails{
			DurationSeconds: ytclient.ParseDuration(v.ContentDetails.Duration),
			Definition:      v.ContentDetails.Definition,
			Caption:         v.ContentDetails.Caption,
		}
	}

	if v.Statistics != nil {
		md.Statistics = model.Statistics{
			ViewCount: int64(v.Statistics.ViewCount),
			LikeCount: int64(v.Statistics.LikeCount),
		}
	}

	if td := v.TopicDetails; td != nil {
		if len(td.TopicCategories) > 0 {
			md.TopicDetails["topicCategories"] = td.TopicCategories
		}
		if len(td.TopicIds) > 0 {
			md.TopicDetails["topicIds"] = td.TopicIds
		}
		if len(td.RelevantTopicIds) > 0 {
			md.TopicDetails["relevantTopicIds"] = td.RelevantTopicIds
		}
	}

	return md
}
