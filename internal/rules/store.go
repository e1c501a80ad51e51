// Package rules loads, validates and caches the declarative rule documents
// that drive layout resolution, extraction and classification.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// Document is one parsed rule document. It is never mutated after load.
type Document struct {
	LoadedAt    time.Time
	Name        string
	Fingerprint string
	Kind        Kind
	raw         []byte
}

// Bytes returns the document source. Callers must not modify it.
func (d *Document) Bytes() []byte {
	return d.raw
}

type typedEntry struct {
	value       any
	fingerprint string
}

// Store owns the rule documents of one rules directory.
type Store struct {
	docs      map[string]*Document
	typed     map[string]typedEntry
	schemas   *schemaSet
	dir       string
	mu        sync.RWMutex
	hotReload bool
}

// Option configures a Store.
type Option func(*Store)

// WithHotReload re-checks each document's content fingerprint on every load.
func WithHotReload(enabled bool) Option {
	return func(s *Store) {
		s.hotReload = enabled
	}
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, opts ...Option) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: rules directory %s: %w", common.ErrMissingConfig, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: rules path %s is not a directory", common.ErrInvalidConfig, dir)
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule schemas: %w", err)
	}

	s := &Store{
		dir:     dir,
		docs:    make(map[string]*Document),
		typed:   make(map[string]typedEntry),
		schemas: schemas,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the rules directory.
func (s *Store) Dir() string {
	return s.dir
}

// HotReload reports whether the store re-validates fingerprints on load.
func (s *Store) HotReload() bool {
	return s.hotReload
}

// Load returns the named document, reading and validating it on first use.
// In hot-reload mode the file is re-hashed on every call and reparsed on change.
func (s *Store) Load(name string) (*Document, error) {
	if !s.hotReload {
		s.mu.RLock()
		doc, ok := s.docs[name]
		s.mu.RUnlock()
		if ok {
			return doc, nil
		}
	}

	raw, err := s.read(name)
	if err != nil {
		return nil, err
	}
	fingerprint := fingerprintOf(raw)

	s.mu.RLock()
	cached, ok := s.docs[name]
	s.mu.RUnlock()
	if ok && cached.Fingerprint == fingerprint {
		return cached, nil
	}

	doc, err := s.parse(name, raw, fingerprint)
	if err != nil {
		return nil, err
	}

	// Concurrent reloads of the same change may both parse; either result is valid.
	s.mu.Lock()
	s.docs[name] = doc
	s.mu.Unlock()

	if ok {
		common.LogDebug("Rule document reloaded", common.Fields{
			"document":    name,
			"fingerprint": fingerprint[:12],
		})
	}
	return doc, nil
}

// Exists reports whether a document file is present in the rules directory.
func (s *Store) Exists(name string) bool {
	path, err := s.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Invalidate drops one cached document and anything decoded from it.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	delete(s.docs, name)
	delete(s.typed, name)
	s.mu.Unlock()
}

// Clear drops every cached document.
func (s *Store) Clear() {
	s.mu.Lock()
	s.docs = make(map[string]*Document)
	s.typed = make(map[string]typedEntry)
	s.mu.Unlock()
}

// Close releases cached documents. The store must not be used afterwards.
func (s *Store) Close() error {
	s.Clear()
	return nil
}

// Cached returns the names of loaded documents.
func (s *Store) Cached() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (s *Store) path(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", common.NewConfigError(name, errors.New("document name must be relative to the rules directory"))
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *Store) read(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path) //nolint:gosec // path is confined to the rules directory
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.NewConfigError(name, fmt.Errorf("%w: %w", common.ErrMissingConfig, err))
		}
		return nil, common.NewConfigError(name, err)
	}
	return raw, nil
}

func (s *Store) parse(name string, raw []byte, fingerprint string) (*Document, error) {
	kind, err := s.schemas.validate(raw)
	if err != nil {
		return nil, common.NewConfigError(name, err)
	}
	return &Document{
		Name:        name,
		Kind:        kind,
		Fingerprint: fingerprint,
		LoadedAt:    time.Now(),
		raw:         raw,
	}, nil
}

func fingerprintOf(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// decodeCached returns the decoded value for name, rebuilding it when the document changed.
func decodeCached[T any](s *Store, name string, want Kind, build func(doc *Document) (T, error)) (T, error) {
	var zero T

	doc, err := s.Load(name)
	if err != nil {
		return zero, err
	}
	if doc.Kind != want {
		return zero, common.NewConfigError(name, fmt.Errorf("expected a %s document, found %s", want, doc.Kind))
	}

	s.mu.RLock()
	entry, ok := s.typed[name]
	s.mu.RUnlock()
	if ok && entry.fingerprint == doc.Fingerprint {
		if v, isT := entry.value.(T); isT {
			return v, nil
		}
	}

	v, err := build(doc)
	if err != nil {
		return zero, common.NewConfigError(name, err)
	}

	s.mu.Lock()
	s.typed[name] = typedEntry{value: v, fingerprint: doc.Fingerprint}
	s.mu.Unlock()
	return v, nil
}
