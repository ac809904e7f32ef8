// Package keystore tracks which YouTube API keys have hit their daily quota.
//
// State is a YAML mapping of key hash to the calendar date the key was last
// exhausted. The file is read once on Open and rewritten on every mark. There
// is no file locking: two runs sharing the same state file may race and the
// last writer wins.
package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// HashKey returns the SHA-256 hex digest used to identify a key on disk.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// KeyStatus describes one configured key without revealing it.
type KeyStatus struct {
	HashPrefix    string
	LastExhausted string
	Usable        bool
}

// Store decides which keys are usable today and persists exhaustion marks.
type Store struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location
	marks  map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the location whose calendar defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// Open loads the state file at path. A missing, unreadable or corrupt file
// yields an empty store so that every key is usable.
func Open(path string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
		marks:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("key state unreadable, treating all keys as usable",
				zap.String("path", path), zap.Error(err))
		}
		return s
	}

	var marks map[string]string
	if err := yaml.Unmarshal(data, &marks); err != nil {
		logger.Warn("key state corrupt, treating all keys as usable",
			zap.String("path", path), zap.Error(err))
		return s
	}
	for hash, date := range marks {
		s.marks[hash] = date
	}

	return s
}

func (s *Store) today() string {
	return s.now().In(s.loc).Format(dateLayout)
}

// UsableKeys returns keys not marked exhausted today, in configured order.
func (s *Store) UsableKeys(keys []string) []string {
	today := s.today()
	usable := make([]string, 0, len(keys))
	for _, k := range keys {
		if s.marks[HashKey(k)] == today {
			continue
		}
		usable = append(usable, k)
	}
	return usable
}

// MarkExhausted records today against the key and writes the state file
// before returning. The in-memory mark survives a failed write.
func (s *Store) MarkExhausted(key string) error {
	hash := HashKey(key)
	today := s.today()
	s.marks[hash] = today

	s.logger.Info("api key marked exhausted",
		zap.String("key_hash", hash[:12]),
		zap.String("date", today))

	if err := s.save(); err != nil {
		return fmt.Errorf("persist key state: %w", err)
	}
	return nil
}

// Status reports each configured key by hash prefix.
func (s *Store) Status(keys []string) []KeyStatus {
	today := s.today()
	out := make([]KeyStatus, 0, len(keys))
	for _, k := range keys {
		hash := HashKey(k)
		date := s.marks[hash]
		out = append(out, KeyStatus{
			HashPrefix:    hash[:12],
			LastExhausted: date,
			Usable:        date != today,
		})
	}
	return out
}

func (s *Store) save() error {
	data, err := yaml.Marshal(s.marks)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
