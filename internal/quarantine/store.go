package quarantine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/stylizr/upload-gateway/internal/filesec"
)

// ErrNotFound is returned when a quarantine id has no record, including
// a second release of an already-released file.
var ErrNotFound = errors.New("quarantine record not found")

// Record is the persisted metadata for one quarantined file.
type Record struct {
	QuarantineID     string            `json:"quarantineId"`
	OriginalPath     string            `json:"originalPath"`
	OriginalFilename string            `json:"originalFilename"`
	Reason           string            `json:"reason"`
	Timestamp        time.Time         `json:"timestamp"`
	FileSize         int64             `json:"fileSize"`
	FileHash         string            `json:"fileHash"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Status           string            `json:"status"`
}

// Config controls retention and the size budget of the holding area.
type Config struct {
	Dir               string
	MaxRetention      time.Duration
	SweepInterval     time.Duration
	MaxTotalSizeBytes int64
}

// Store is the durable holding area for files flagged as high risk. The
// file copy and its sidecar metadata live in a date-partitioned directory;
// the store is the sole writer and deleter of both.
type Store struct {
	cfg    Config
	logger *zap.Logger

	mu sync.Mutex

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewStore ensures the quarantine directory exists and returns a handle.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Dir == "" {
		cfg.Dir = "./quarantine"
	}
	if cfg.MaxRetention <= 0 {
		cfg.MaxRetention = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.MaxTotalSizeBytes <= 0 {
		cfg.MaxTotalSizeBytes = 1024 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create quarantine directory: %w", err)
	}
	return &Store{cfg: cfg, logger: logger}, nil
}

// Quarantine copies (never moves) the file at path into a date-partitioned
// subdirectory under a random unguessable id and writes a sidecar metadata
// record. The original remains available to the caller for audit. The total
// size budget is enforced here: oldest records are evicted until the new
// file fits.
func (s *Store) Quarantine(path, reason string, metadata map[string]string) (filesec.QuarantineReceipt, error) {
	src, err := os.Open(path)
	if err != nil {
		return filesec.QuarantineReceipt{}, fmt.Errorf("open source file: %w", err)
	}
	defer src.Close() //nolint:errcheck

	info, err := src.Stat()
	if err != nil {
		return filesec.QuarantineReceipt{}, fmt.Errorf("stat source file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if info.Size() > s.cfg.MaxTotalSizeBytes {
		return filesec.QuarantineReceipt{}, fmt.Errorf("file of %d bytes exceeds the quarantine budget", info.Size())
	}
	if err := s.evictForLocked(info.Size()); err != nil {
		return filesec.QuarantineReceipt{}, err
	}

	id := uuid.NewString()
	partition := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(s.cfg.Dir, partition)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return filesec.QuarantineReceipt{}, fmt.Errorf("create partition directory: %w", err)
	}

	dataPath := filepath.Join(dir, id+".bin")
	hash, err := copyAndHash(dataPath, src)
	if err != nil {
		_ = os.Remove(dataPath)
		return filesec.QuarantineReceipt{}, fmt.Errorf("copy file into quarantine: %w", err)
	}

	record := Record{
		QuarantineID:     id,
		OriginalPath:     path,
		OriginalFilename: metadataValue(metadata, "originalFilename"),
		Reason:           reason,
		Timestamp:        time.Now().UTC(),
		FileSize:         info.Size(),
		FileHash:         hash,
		Metadata:         metadata,
		Status:           "quarantined",
	}
	if err := s.writeRecord(dir, record); err != nil {
		_ = os.Remove(dataPath)
		return filesec.QuarantineReceipt{}, err
	}

	s.logger.Info("file quarantined",
		zap.String("quarantine_id", id),
		zap.String("reason", reason),
		zap.Int64("size", info.Size()))

	return filesec.QuarantineReceipt{ID: id, Path: dataPath}, nil
}

// Release deletes both the quarantined copy and its metadata. Releasing an
// unknown or already-released id fails with ErrNotFound without panicking.
func (s *Store) Release(quarantineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(quarantineID)
}

// List returns every current quarantine record across date partitions,
// newest first.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.recordsLocked()
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// Retention reports how long records are held before the sweep removes them.
func (s *Store) Retention() time.Duration {
	return s.cfg.MaxRetention
}

// TotalSize reports the bytes currently held in quarantine.
func (s *Store) TotalSize() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.recordsLocked()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range records {
		total += r.FileSize
	}
	return total, nil
}

// Start launches the expiry sweep. Safe to call once; the sweep is owned
// by the store and stops with it.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.wg.Add(1)
	go s.sweepLoop(sweepCtx)
}

// Stop cancels the sweep and waits for it to exit.
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()
	s.wg.Wait()
}

// SweepExpired releases every record older than the retention window and
// returns the released ids. Not-found races with concurrent releases are
// skipped rather than failing the sweep.
func (s *Store) SweepExpired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.recordsLocked()
	if err != nil {
		s.logger.Warn("quarantine sweep failed to list records", zap.Error(err))
		return nil
	}
	cutoff := time.Now().UTC().Add(-s.cfg.MaxRetention)
	released := make([]string, 0)
	for _, record := range records {
		if record.Timestamp.After(cutoff) {
			continue
		}
		if err := s.releaseLocked(record.QuarantineID); err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("quarantine sweep release failed",
					zap.String("quarantine_id", record.QuarantineID), zap.Error(err))
			}
			continue
		}
		released = append(released, record.QuarantineID)
	}
	if len(released) > 0 {
		s.logger.Info("quarantine sweep released expired files", zap.Int("count", len(released)))
	}
	return released
}

func (s *Store) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired()
		}
	}
}

func (s *Store) releaseLocked(quarantineID string) error {
	metaPath, err := s.findRecordPath(quarantineID)
	if err != nil {
		return err
	}
	dataPath := strings.TrimSuffix(metaPath, ".meta.json") + ".bin"
	if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete quarantined file: %w", err)
	}
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete quarantine metadata: %w", err)
	}
	return nil
}

// evictForLocked frees room for incoming bytes by releasing the oldest
// records first. Time-based expiry alone cannot bound growth under
// sustained attack traffic.
func (s *Store) evictForLocked(incoming int64) error {
	records, err := s.recordsLocked()
	if err != nil {
		return err
	}
	var total int64
	for _, r := range records {
		total += r.FileSize
	}
	if total+incoming <= s.cfg.MaxTotalSizeBytes {
		return nil
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	for _, record := range records {
		if total+incoming <= s.cfg.MaxTotalSizeBytes {
			break
		}
		if err := s.releaseLocked(record.QuarantineID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return fmt.Errorf("evict quarantine record %s: %w", record.QuarantineID, err)
		}
		total -= record.FileSize
		s.logger.Warn("evicted quarantine record for size budget",
			zap.String("quarantine_id", record.QuarantineID))
	}
	if total+incoming > s.cfg.MaxTotalSizeBytes {
		return fmt.Errorf("quarantine size budget exhausted")
	}
	return nil
}

func (s *Store) recordsLocked() ([]Record, error) {
	records := make([]Record, 0)
	err := filepath.WalkDir(s.cfg.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".meta.json") {
			return nil
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				return nil
			}
			return readErr
		}
		var record Record
		if unmarshalErr := json.Unmarshal(raw, &record); unmarshalErr != nil {
			s.logger.Warn("skipping corrupt quarantine metadata", zap.String("path", path))
			return nil
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk quarantine directory: %w", err)
	}
	return records, nil
}

func (s *Store) findRecordPath(quarantineID string) (string, error) {
	var found string
	err := filepath.WalkDir(s.cfg.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Base(path) == quarantineID+".meta.json" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("locate quarantine record: %w", err)
	}
	if found == "" {
		return "", ErrNotFound
	}
	return found, nil
}

func (s *Store) writeRecord(dir string, record Record) error {
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quarantine metadata: %w", err)
	}
	metaPath := filepath.Join(dir, record.QuarantineID+".meta.json")
	if err := os.WriteFile(metaPath, raw, 0o640); err != nil {
		return fmt.Errorf("write quarantine metadata: %w", err)
	}
	return nil
}

func copyAndHash(dst string, src io.Reader) (string, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", err
	}
	defer out.Close() //nolint:errcheck
	if _, err := io.Copy(io.MultiWriter(out, hasher), src); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func metadataValue(metadata map[string]string, key string) string {
	if metadata == nil {
		return ""
	}
	return metadata[key]
}
