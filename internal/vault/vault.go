// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vault persists article and tag artifacts as plain files. Every
// (entity, slot) pair maps to a UTF-8 text file and an optional vector file
// beside it. Presence of the text file is the only staleness signal.
package vault

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Store is a vault rooted at one directory. It holds no in-memory state
// beyond its configuration, so concurrent readers and writers of distinct
// refs need no coordination.
type Store struct {
	root string
	dim  int
}

// Open prepares the vault at root, creating docs/ and tags/ when missing.
// dim is the expected vector length; zero accepts any length.
func Open(root string, dim int) (*Store, error) {
	if root == "" {
		return nil, errors.New("vault root is empty")
	}
	for _, k := range []Kind{Documents, Tags} {
		if err := os.MkdirAll(filepath.Join(root, string(k)), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", k, err)
		}
	}
	return &Store{root: root, dim: dim}, nil
}

// Root returns the vault directory.
func (s *Store) Root() string { return s.root }

// Dimensions returns the configured vector length (zero when unchecked).
func (s *Store) Dimensions() int { return s.dim }

// Path returns the filesystem path of the text file for ref.
func (s *Store) Path(ref Ref) string {
	return filepath.Join(s.root, filepath.FromSlash(ref.String()))
}

func (s *Store) vectorPath(ref Ref) string {
	dir := filepath.Join(s.root, string(ref.Kind), ref.ID)
	return filepath.Join(dir, filepath.FromSlash(ref.Slot.vectorName()))
}

// Has reports whether the text artifact for ref exists.
func (s *Store) Has(ref Ref) bool {
	if ref.validate() != nil {
		return false
	}
	info, err := os.Stat(s.Path(ref))
	return err == nil && info.Mode().IsRegular()
}

// ReadText returns the stored text for ref. An absent artifact yields
// ok=false and a nil error.
func (s *Store) ReadText(ref Ref) (string, bool, error) {
	if err := ref.validate(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", ref, err)
	}
	return string(data), true, nil
}

// ReadVector returns the stored vector for ref. A missing, truncated or
// wrong-dimension vector file is reported as absent.
func (s *Store) ReadVector(ref Ref) ([]float32, bool) {
	if ref.validate() != nil {
		return nil, false
	}
	data, err := os.ReadFile(s.vectorPath(ref))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("unreadable vector, treating as absent", "ref", ref.String(), "error", err)
		}
		return nil, false
	}
	vec, err := decodeVector(data, s.dim)
	if err != nil {
		slog.Warn("corrupt vector, treating as absent", "ref", ref.String(), "error", err)
		return nil, false
	}
	return vec, true
}

// Write stores text and, when non-empty, its vector. Any previous vector is
// removed before the new text becomes visible, and the new vector is
// renamed into place after it, so a reader never pairs a text with a vector
// computed from different text.
func (s *Store) Write(ref Ref, text string, vec []float32) error {
	if err := ref.validate(); err != nil {
		return err
	}
	if len(vec) > 0 {
		if err := s.checkDim(vec); err != nil {
			return fmt.Errorf("writing %s: %w", ref, err)
		}
	}

	textPath := s.Path(ref)
	vecPath := s.vectorPath(ref)
	if err := os.MkdirAll(filepath.Dir(textPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", ref, err)
	}

	textTmp, err := writeTemp(textPath, []byte(text))
	if err != nil {
		return fmt.Errorf("writing %s: %w", ref, err)
	}

	var vecTmp string
	if len(vec) > 0 {
		vecTmp, err = writeTemp(vecPath, encodeVector(vec))
		if err != nil {
			os.Remove(textTmp)
			return fmt.Errorf("writing vector for %s: %w", ref, err)
		}
	}

	if err := os.Remove(vecPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		os.Remove(textTmp)
		if vecTmp != "" {
			os.Remove(vecTmp)
		}
		return fmt.Errorf("removing stale vector for %s: %w", ref, err)
	}

	if err := os.Rename(textTmp, textPath); err != nil {
		os.Remove(textTmp)
		if vecTmp != "" {
			os.Remove(vecTmp)
		}
		return fmt.Errorf("committing %s: %w", ref, err)
	}

	if vecTmp != "" {
		if err := os.Rename(vecTmp, vecPath); err != nil {
			os.Remove(vecTmp)
			return fmt.Errorf("committing vector for %s: %w", ref, err)
		}
	}
	return nil
}

// WriteVector stores a vector for text that is already persisted.
func (s *Store) WriteVector(ref Ref, vec []float32) error {
	if err := ref.validate(); err != nil {
		return err
	}
	if len(vec) == 0 {
		return fmt.Errorf("writing vector for %s: empty vector", ref)
	}
	if err := s.checkDim(vec); err != nil {
		return fmt.Errorf("writing vector for %s: %w", ref, err)
	}
	vecPath := s.vectorPath(ref)
	if err := os.MkdirAll(filepath.Dir(vecPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", ref, err)
	}
	tmp, err := writeTemp(vecPath, encodeVector(vec))
	if err != nil {
		return fmt.Errorf("writing vector for %s: %w", ref, err)
	}
	if err := os.Rename(tmp, vecPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing vector for %s: %w", ref, err)
	}
	return nil
}

// ReadYAML decodes the YAML artifact at ref into v. It reports false when
// the artifact does not exist.
func (s *Store) ReadYAML(ref Ref, v any) (bool, error) {
	text, ok, err := s.ReadText(ref)
	if err != nil || !ok {
		return false, err
	}
	if err := yaml.Unmarshal([]byte(text), v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", ref, err)
	}
	return true, nil
}

// WriteYAML encodes v and stores it at ref without a vector.
func (s *Store) WriteYAML(ref Ref, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", ref, err)
	}
	return s.Write(ref, string(data), nil)
}

// Entities returns the sorted IDs of every entity directory of kind.
// Hidden and underscore-prefixed names are reserved and skipped.
func (s *Store) Entities(kind Kind) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, string(kind)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", kind, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// CountSections returns the number of consecutive section summary slots
// stored for the article, starting at index zero.
func (s *Store) CountSections(id string) int {
	n := 0
	for s.Has(Doc(id, Section(n))) {
		n++
	}
	return n
}

func (s *Store) checkDim(vec []float32) error {
	if s.dim > 0 && len(vec) != s.dim {
		return fmt.Errorf("vector has %d dimensions, want %d", len(vec), s.dim)
	}
	return nil
}

// writeTemp writes data to a hidden temporary file next to target and
// returns its path. The caller renames or removes it.
func writeTemp(target string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return name, nil
}

// encodeVector lays out vec as dense little-endian IEEE-754 float32.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("empty vector file")
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("size %d is not a multiple of 4", len(data))
	}
	n := len(data) / 4
	if dim > 0 && n != dim {
		return nil, fmt.Errorf("vector has %d dimensions, want %d", n, dim)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
