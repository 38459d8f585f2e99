package diskstore

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Category names a subdirectory of the store holding one kind of document.
type Category string

const (
	// Blobs holds raw image bytes keyed by source URL.
	Blobs Category = "blobs"
	// Queries holds search result documents keyed by normalized query text.
	Queries Category = "queries"
)

// RecentDocument is the fixed-path document holding the recency list.
const RecentDocument = "recent.json"

const tempPrefix = ".tmp-"

// IOError reports a failed disk read or write.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("diskstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError checks if an error is a disk I/O error.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// Store persists blobs and JSON documents under a base directory.
type Store struct {
	base string
}

// New creates a Store rooted at base, creating the directory if needed.
func New(base string) (*Store, error) {
	if base == "" {
		return nil, errors.New("diskstore: empty base directory")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: base, Err: err}
	}
	return &Store{base: base}, nil
}

// Dir returns the base directory path.
func (s *Store) Dir() string {
	return s.base
}

// HashKey creates a SHA-256 hash of the given identifier.
func HashKey(identifier string) string {
	h := sha256.Sum256([]byte(identifier))
	return fmt.Sprintf("%x", h)
}

// PathFor returns base/<category>/<hash(identifier)>.<ext>.
func (s *Store) PathFor(cat Category, identifier string) string {
	ext := ".json"
	if cat == Blobs {
		ext = blobExt(identifier)
	}
	return filepath.Join(s.base, string(cat), HashKey(identifier)+ext)
}

// DocumentPath returns the path of a fixed-name document at the base.
func (s *Store) DocumentPath(name string) string {
	return filepath.Join(s.base, name)
}

// Read returns the stored bytes. Absence is (nil, false, nil).
func (s *Store) Read(cat Category, identifier string) ([]byte, bool, error) {
	return readFile(s.PathFor(cat, identifier))
}

// Exists reports whether a fully written entry is present.
func (s *Store) Exists(cat Category, identifier string) bool {
	info, err := os.Stat(s.PathFor(cat, identifier))
	return err == nil && info.Mode().IsRegular()
}

// Write stores data for identifier, replacing any previous entry.
func (s *Store) Write(cat Category, identifier string, data []byte) error {
	return writeFile(s.PathFor(cat, identifier), data)
}

// ReadJSON decodes the stored document into v. Returns false on miss.
func (s *Store) ReadJSON(cat Category, identifier string, v any) (bool, error) {
	return readJSON(s.PathFor(cat, identifier), v)
}

// WriteJSON stores v as pretty-printed JSON.
func (s *Store) WriteJSON(cat Category, identifier string, v any) error {
	return writeJSON(s.PathFor(cat, identifier), v)
}

// ReadDocument decodes the fixed-name document into v. Returns false on miss.
func (s *Store) ReadDocument(name string, v any) (bool, error) {
	return readJSON(s.DocumentPath(name), v)
}

// WriteDocument stores v as the fixed-name document, overwriting it.
func (s *Store) WriteDocument(name string, v any) error {
	return writeJSON(s.DocumentPath(name), v)
}

// RemoveDocument deletes the fixed-name document. It reports whether a
// document was present.
func (s *Store) RemoveDocument(name string) (bool, error) {
	p := s.DocumentPath(name)
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &IOError{Op: "remove", Path: p, Err: err}
	}
	return true, nil
}

// Clear removes all entries of a category and returns how many were removed.
func (s *Store) Clear(cat Category) (int, error) {
	dir := filepath.Join(s.base, string(cat))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &IOError{Op: "readdir", Path: dir, Err: err}
	}
	var removed int
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// CategoryStats summarizes one category directory.
type CategoryStats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"totalBytes"`
}

// Stats returns store statistics.
type Stats struct {
	Dir     string        `json:"dir"`
	Blobs   CategoryStats `json:"blobs"`
	Queries CategoryStats `json:"queries"`
	Recent  bool          `json:"recent"`
}

// GetStats returns information about the store.
func (s *Store) GetStats() (Stats, error) {
	stats := Stats{Dir: s.base}
	var err error
	if stats.Blobs, err = s.categoryStats(Blobs); err != nil {
		return stats, err
	}
	if stats.Queries, err = s.categoryStats(Queries); err != nil {
		return stats, err
	}
	if _, err := os.Stat(s.DocumentPath(RecentDocument)); err == nil {
		stats.Recent = true
	}
	return stats, nil
}

func (s *Store) categoryStats(cat Category) (CategoryStats, error) {
	var cs CategoryStats
	dir := filepath.Join(s.base, string(cat))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return cs, nil
		}
		return cs, &IOError{Op: "readdir", Path: dir, Err: err}
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cs.Entries++
		cs.TotalBytes += info.Size()
	}
	return cs, nil
}

// blobExt derives the file extension from the URL path, defaulting to .bin.
func blobExt(identifier string) string {
	p := identifier
	if u, err := url.Parse(identifier); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if len(ext) < 2 || len(ext) > 6 {
		return ".bin"
	}
	return ext
}

func readFile(p string) ([]byte, bool, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &IOError{Op: "read", Path: p, Err: err}
	}
	return data, true, nil
}

func readJSON(p string, v any) (bool, error) {
	data, ok, err := readFile(p)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &IOError{Op: "parse", Path: p, Err: err}
	}
	return true, nil
}

func writeJSON(p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("diskstore: marshaling %s: %w", p, err)
	}
	return writeFile(p, data)
}

// writeFile writes through a temporary sibling and renames it into place,
// so readers never observe a partially written entry.
func writeFile(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return &IOError{Op: "create", Path: p, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: p, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: p, Err: err}
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: p, Err: err}
	}
	return nil
}
