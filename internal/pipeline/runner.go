package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ad-tracker/watch-history-pipeline/internal/history"
	"github.com/ad-tracker/watch-history-pipeline/internal/merger"
	"github.com/ad-tracker/watch-history-pipeline/internal/metrics"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

// Progress steps: metadata, merge, then one per cleaning stage.
const (
	totalSteps     = 8
	firstStageStep = 3
)

// Cache result labels.
const (
	cacheHit  = "hit"
	cacheMiss = "miss"
)

// MetadataFetcher looks up videos missing from the cache.
type MetadataFetcher interface {
	Fetch(ctx context.Context, ids []string, watchTimes map[string]model.WatchTime) (map[string]*model.VideoMetadata, error)
}

// MetadataCache is the persisted metadata store used by a run.
type MetadataCache interface {
	merger.MetadataLookup
	Missing(ids []string) []string
	Put(records map[string]*model.VideoMetadata)
	Backfill(watchTimes map[string]model.WatchTime)
	Save() error
	Len() int
}

// Result is the outcome of one run.
type Result struct {
	RunID string

	// Entries is the number of history entries in the target year.
	Entries int
	// Videos is the number of distinct video IDs among them.
	Videos int
	// CacheHits and Fetched split Videos by where metadata came from.
	CacheHits int
	Fetched   int

	Rows []model.WatchRow
}

// Runner executes the pipeline for one calendar year.
type Runner struct {
	fetcher MetadataFetcher
	cache   MetadataCache
	year    int
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRunner creates a Runner. opts.Logger and opts.Metrics are replaced by
// the run-scoped logger and m.
func NewRunner(fetcher MetadataFetcher, cache MetadataCache, year int, opts Options, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Runner{
		fetcher: fetcher,
		cache:   cache,
		year:    year,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

// Run enriches and cleans entries. A fetch failure aborts the run; a cache
// write failure is logged and the run continues with the in-memory cache.
func (r *Runner) Run(ctx context.Context, entries []model.WatchHistoryEntry) (*Result, error) {
	runID := uuid.New().String()
	logger := r.logger.With(zap.String("run_id", runID))

	filtered, ids, watchTimes := history.Extract(entries, r.year)
	missing := r.cache.Missing(ids)

	res := &Result{
		RunID:     runID,
		Entries:   len(filtered),
		Videos:    len(ids),
		CacheHits: len(ids) - len(missing),
	}
	r.metrics.CacheLookupsTotal.WithLabelValues(cacheHit).Add(float64(res.CacheHits))
	r.metrics.CacheLookupsTotal.WithLabelValues(cacheMiss).Add(float64(len(missing)))

	logger.Info(fmt.Sprintf("[1/%d] video metadata", totalSteps),
		zap.Int("year", r.year),
		zap.Int("entries", len(entries)),
		zap.Int("entries_in_year", res.Entries),
		zap.Int("videos", res.Videos),
		zap.Int("cached", res.CacheHits),
		zap.Int("missing", len(missing)))

	if len(missing) > 0 {
		fetched, err := r.fetcher.Fetch(ctx, missing, watchTimes)
		if err != nil {
			return nil, fmt.Errorf("fetch metadata: %w", err)
		}
		r.cache.Put(fetched)
		res.Fetched = len(fetched)
	}

	r.cache.Backfill(watchTimes)
	if err := r.cache.Save(); err != nil {
		logger.Warn("failed to save metadata cache", zap.Error(err))
	}

	rows := merger.Merge(filtered, r.cache)
	logger.Info(fmt.Sprintf("[2/%d] merge", totalSteps), zap.Int("rows", len(rows)))

	opts := r.opts
	opts.Logger = logger
	opts.Metrics = r.metrics
	res.Rows = Clean(rows, opts)

	logger.Info("pipeline complete",
		zap.Int("final_rows", len(res.Rows)),
		zap.Int("fetched", res.Fetched),
		zap.Int("cache_size", r.cache.Len()))

	return res, nil
}
