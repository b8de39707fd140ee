// Package checkpoint persists crawl progress and finished batches as JSON
// files under the output directory. One checkpoint file per store per day; a
// same-day rerun overwrites it.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pricecrawler/internal/domain/models"
)

const dateLayout = "2006-01-02"

type Store struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

func New(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dir: dir, log: log, now: time.Now}
}

// Save writes the in-progress snapshot. Called after every successful page
// fetch; a crash loses at most one page of work.
func (s *Store) Save(cp models.Checkpoint) (string, error) {
	path := filepath.Join(s.dir, partialName(cp.StoreName, cp.DateTime))
	if err := s.write(path, cp); err != nil {
		return "", err
	}
	s.log.Debug("checkpoint saved", "store", cp.StoreName, "path", path)
	return path, nil
}

// SaveBatch writes the terminal per-store result.
func (s *Store) SaveBatch(b models.Batch) (string, error) {
	path := filepath.Join(s.dir, batchName(b.StoreName, b.DateTime))
	if err := s.write(path, b); err != nil {
		return "", err
	}
	s.log.Info("batch saved", "store", b.StoreName, "path", path)
	return path, nil
}

// Load returns today's checkpoint for the store, or nil when none exists.
// Prior-day checkpoints are never resumed.
func (s *Store) Load(storeName string) (*models.Checkpoint, error) {
	path := filepath.Join(s.dir, partialName(storeName, s.now()))
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// Remove deletes today's checkpoint once the final batch is safely written.
func (s *Store) Remove(storeName string) error {
	path := filepath.Join(s.dir, partialName(storeName, s.now()))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint %s: %w", path, err)
	}
	return nil
}

func (s *Store) write(path string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", s.dir, err)
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func partialName(store string, t time.Time) string {
	return fmt.Sprintf("%s-products-partial-%s.json", store, t.Format(dateLayout))
}

func batchName(store string, t time.Time) string {
	return fmt.Sprintf("%s-products-%s.json", store, t.Format(dateLayout))
}

// IsBatchFile reports whether a file name looks like a finished batch rather
// than a partial checkpoint. Used when importing a whole directory.
func IsBatchFile(name string) bool {
	return filepath.Ext(name) == ".json" && !strings.Contains(name, "-partial-")
}
