// Package cache persists enriched video metadata between runs so known
// videos are not fetched again.
//
// The cache is a flat JSON snapshot: a list of records reloaded by video ID.
// Files in the older camelCase layout are read too and rewritten in the
// current layout on the next save.
// Entries are only ever added or backfilled, never removed. Like the key
// store, the file is read-modify-write without locking; concurrent runs
// against one cache file are unsupported and the last writer wins.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ad-tracker/watch-history-pipeline/internal/history"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

// Cache maps video ID to enriched metadata.
type Cache struct {
	path    string
	logger  *zap.Logger
	entries map[string]*model.VideoMetadata
}

// New returns an empty cache bound to path.
func New(path string, logger *zap.Logger) *Cache {
	return &Cache{
		path:    path,
		logger:  logger,
		entries: make(map[string]*model.VideoMetadata),
	}
}

// Load reads the cache file. A missing, unreadable or corrupt file yields an
// empty cache.
func Load(path string, logger *zap.Logger) *Cache {
	c := New(path, logger)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("metadata cache unreadable, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return c
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("metadata cache corrupt, starting empty",
			zap.String("path", path), zap.Error(err))
		return c
	}

	for i, raw := range records {
		md, err := decodeRecord(raw)
		if err != nil {
			logger.Warn("skipping unreadable cache entry",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		if md.VideoID == "" {
			continue
		}
		c.entries[md.VideoID] = md
	}

	logger.Info("metadata cache loaded",
		zap.String("path", path),
		zap.Int("entries", len(c.entries)))

	return c
}

// Len returns the number of cached videos.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Get returns the cached metadata for id.
func (c *Cache) Get(id string) (*model.VideoMetadata, bool) {
	md, ok := c.entries[id]
	return md, ok
}

// Put adds or replaces entries.
func (c *Cache) Put(records map[string]*model.VideoMetadata) {
	for id, md := range records {
		c.entries[id] = md
	}
}

// Missing returns the ids not yet cached, preserving input order.
func (c *Cache) Missing(ids []string) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := c.entries[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Backfill refreshes watched_at_sql for every cached id present in
// watchTimes, and rewrites legacy RFC 3339 published_at values to the
// DATETIME format. Running it twice is a no-op.
func (c *Cache) Backfill(watchTimes map[string]model.WatchTime) {
	for id, wt := range watchTimes {
		md, ok := c.entries[id]
		if !ok {
			continue
		}
		md.WatchedAtSQL = wt.WatchedAtSQL

		if strings.Contains(md.Snippet.PublishedAt, "T") {
			md.Snippet.PublishedAt = history.ToSQL(md.Snippet.PublishedAt)
		}
	}
}

// Values returns every cached record ordered by video ID.
func (c *Cache) Values() []*model.VideoMetadata {
	out := make([]*model.VideoMetadata, 0, len(c.entries))
	for _, md := range c.entries {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out
}

// Save writes the snapshot atomically.
func (c *Cache) Save() error {
	data, err := json.MarshalIndent(c.Values(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*")
	if err != nil {
		return fmt.Errorf("write metadata cache: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write metadata cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("write metadata cache: %w", err)
	}

	c.logger.Debug("metadata cache saved",
		zap.String("path", c.path),
		zap.Int("entries", len(c.entries)))
	return nil
}
