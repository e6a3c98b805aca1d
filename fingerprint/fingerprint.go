// Package fingerprint detects whether a serialized payload changed since the
// last run by hashing it and comparing against the canonical file on disk.
// Changed payloads rotate the old file aside under a numeric suffix so prior
// revisions stay inspectable, and reverting to any earlier revision is a no-op.
package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"
)

// Classification describes how a payload relates to what is stored for its key.
type Classification int

const (
	// New means no file exists for the key yet.
	New Classification = iota
	// Unchanged means the payload hash matches a stored revision.
	Unchanged
	// Changed means a canonical file exists with a different hash.
	Changed
)

func (c Classification) String() string {
	switch c {
	case New:
		return "new"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// Store keeps one canonical file per key under Dir, plus rotated revisions.
type Store struct {
	Dir string
}

// NewStore creates the backing directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fingerprint dir %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

func sum(data []byte) string {
	h := xxh3.Hash128(data)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// splitExt returns the key with its extension detached, so rotation suffixes
// land before the extension ("a_Data.json" -> "a_Data", ".json").
func splitExt(key string) (stem, ext string) {
	ext = filepath.Ext(key)
	return strings.TrimSuffix(key, ext), ext
}

// revisions lists every stored path for key: canonical first, then rotated
// files in suffix order. Stops at the first gap in the suffix sequence.
func (s *Store) revisions(key string) []string {
	var out []string
	canonical := filepath.Join(s.Dir, key)
	if _, err := os.Stat(canonical); err == nil {
		out = append(out, canonical)
	}
	stem, ext := splitExt(key)
	for n := 1; ; n++ {
		p := filepath.Join(s.Dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Stat(p); err != nil {
			break
		}
		out = append(out, p)
	}
	return out
}

// Classify reports whether data is new, already stored under any revision of
// key, or a change from the canonical file.
func (s *Store) Classify(key string, data []byte) (Classification, error) {
	revs := s.revisions(key)
	if len(revs) == 0 {
		return New, nil
	}
	want := sum(data)
	for _, p := range revs {
		b, err := os.ReadFile(p)
		if err != nil {
			return 0, fmt.Errorf("read revision %s: %w", p, err)
		}
		if sum(b) == want {
			return Unchanged, nil
		}
	}
	return Changed, nil
}

// Commit persists data as the canonical file for key. When a different
// canonical file already exists it is rotated aside to the first free numeric
// slot before being replaced. Writes go through a temp file and rename so a
// crash never leaves a torn canonical file.
func (s *Store) Commit(key string, data []byte) error {
	canonical := filepath.Join(s.Dir, key)
	if b, err := os.ReadFile(canonical); err == nil {
		if sum(b) == sum(data) {
			return nil
		}
		if err := s.rotate(key); err != nil {
			return err
		}
	}
	return writeAtomic(canonical, data)
}

func (s *Store) rotate(key string) error {
	stem, ext := splitExt(key)
	for n := 1; ; n++ {
		p := filepath.Join(s.Dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return os.Rename(filepath.Join(s.Dir, key), p)
		}
	}
}

// Put writes data for key without rotation or hashing. Used for binary
// assets (thumbnails, avatars) where revision history is not kept.
func (s *Store) Put(key string, data []byte) error {
	return writeAtomic(filepath.Join(s.Dir, key), data)
}

// Path returns the canonical on-disk path for key.
func (s *Store) Path(key string) string { return filepath.Join(s.Dir, key) }

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
