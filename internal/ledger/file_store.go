package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

// FileStore keeps the audit log as a single JSON array on disk. Every append
// rewrites the file through a synced temp file and rename.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger.With("component", "audit_file")}
}

func (s *FileStore) Path() string { return s.path }

var errCorruptLog = errors.New("audit log corrupt")

// AddEntry appends entry. A log that no longer parses is renamed to
// <path>.corrupt-<timestamp> first, so the new file starts fresh without
// losing the old bytes.
func (s *FileStore) AddEntry(entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readLocked()
	if errors.Is(err, errCorruptLog) {
		aside := s.path + ".corrupt-" + time.Now().UTC().Format("20060102T150405.000000000Z")
		if renameErr := os.Rename(s.path, aside); renameErr != nil {
			return fmt.Errorf("set aside corrupt audit log: %w", renameErr)
		}
		s.logger.Error("audit log corrupt, moved aside", "path", s.path, "moved_to", aside, "error", err)
		entries, err = []types.AuditEntry{}, nil
	}
	if err != nil {
		return err
	}
	return s.writeLocked(append(entries, entry))
}

func (s *FileStore) GetAllEntries() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readLocked()
	if err != nil {
		s.logger.Warn("audit log unreadable, treating as empty", "path", s.path, "error", err)
		return []types.AuditEntry{}
	}
	return entries
}

func (s *FileStore) GetDailyTotal(date string) float64 {
	return DailyTotal(s.GetAllEntries(), date)
}

func (s *FileStore) GetTenantDailyTotal(tenant, date string) float64 {
	return DailyTotal(ForTenant(s.GetAllEntries(), tenant), date)
}

// readLocked returns the stored entries. A missing file is an empty log.
func (s *FileStore) readLocked() ([]types.AuditEntry, error) {
	// #nosec G304 -- path is operator-provided audit path.
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []types.AuditEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []types.AuditEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptLog, err)
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}
	return entries, nil
}

func (s *FileStore) writeLocked(entries []types.AuditEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, data, 0o600)
}

// WriteFileAtomic writes data to path so that readers observe either the old
// or the new contents, and the new contents are on stable storage on return.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	// #nosec G304 -- dir derives from the operator-provided path.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
