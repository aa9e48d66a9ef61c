// Package store implements the hierarchical column archive that every pipeline
// stage reads from and writes to. A store is a directory; each dataset is one
// column file addressed by a slash separated path such as catalog/gold/ra.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/metrics"
	"github.com/dd0wney/skyfactory/pkg/table"
	"github.com/dd0wney/skyfactory/pkg/validation"
)

// DefaultCacheColumns is the decoded column cache size when Options leaves it unset.
const DefaultCacheColumns = 64

// Options configures a Store
type Options struct {
	Codec        Codec
	CacheColumns int // decoded columns kept in memory; negative disables the cache
	ReadOnly     bool
	Logger       logging.Logger
	Metrics      *metrics.Registry
}

// Store is an archive rooted at a directory
type Store struct {
	root   string
	opts   Options
	logger logging.Logger
	cache  *lru.Cache[string, table.Column]
	links  map[string]Link
	remote map[string]*Store // opened link targets keyed by absolute root
	closed bool
	mu     sync.RWMutex
}

// Open opens the archive at dir, creating the directory unless the store is read-only.
func Open(dir string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, NewError("open").Store(dir).Cause(err).Err()
	}
	if opts.ReadOnly {
		info, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, NewError("open").Store(dir).Cause(ErrDatasetNotFound).Err()
			}
			return nil, NewError("open").Store(dir).Cause(err).Err()
		}
		if !info.IsDir() {
			return nil, NewError("open").Store(dir).Cause(ErrInvalidPath).Err()
		}
	} else if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, NewError("open").Store(dir).Cause(err).Err()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	s := &Store{
		root:   abs,
		opts:   opts,
		logger: opts.Logger.With(logging.Component("store"), logging.Path(abs)),
		remote: make(map[string]*Store),
	}

	size := validation.DefaultOr(opts.CacheColumns, DefaultCacheColumns)
	if size > 0 {
		cache, err := lru.New[string, table.Column](size)
		if err != nil {
			return nil, fmt.Errorf("create column cache: %w", err)
		}
		s.cache = cache
	}

	if err := s.loadLinks(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the absolute directory of the archive.
func (s *Store) Root() string { return s.root }

// Close releases link targets and drops the cache. Further calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, r := range s.remote {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.remote = nil
	if s.cache != nil {
		s.cache.Purge()
	}
	return errors.Join(errs...)
}

func (s *Store) checkOpen(op string) error {
	if s.closed {
		return NewError(op).Store(s.root).Cause(ErrStoreClosed).Err()
	}
	return nil
}

// CleanPath validates an archive path and strips surrounding slashes.
func CleanPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if err := validation.ValidateDatasetPath(p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return p, nil
}

// Join builds an archive path from segments, skipping empty ones.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

func (s *Store) datasetFile(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p)) + FileExt
}

func (s *Store) groupDir(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

// target is a path resolved to the store that physically holds it
type target struct {
	store *Store
	path  string
}

// resolve follows external links. The caller must hold s.mu.
func (s *Store) resolve(p string, depth int) (target, error) {
	if depth > maxLinkDepth {
		return target{}, NewError("resolve").Link(p).Context("link chain too deep").Cause(ErrInvalidPath).Err()
	}
	key, link, ok := s.matchLink(p)
	if !ok {
		return target{store: s, path: p}, nil
	}
	remote, err := s.openRemote(link.Store)
	if err != nil {
		return target{}, err
	}
	rp := Join(link.Path, strings.TrimPrefix(p, key))
	if remote != s {
		remote.mu.Lock()
		defer remote.mu.Unlock()
	}
	return remote.resolve(rp, depth+1)
}

// Exists reports whether a dataset or group exists at path.
func (s *Store) Exists(path string) bool {
	p, err := CleanPath(path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	t, err := s.resolve(p, 0)
	if err != nil {
		return false
	}
	return t.store.existsLocal(t.path)
}

func (s *Store) existsLocal(p string) bool {
	if _, err := os.Stat(s.datasetFile(p)); err == nil {
		return true
	}
	if info, err := os.Stat(s.groupDir(p)); err == nil && info.IsDir() {
		return true
	}
	for key := range s.links {
		if key == p || strings.HasPrefix(key, p+"/") {
			return true
		}
	}
	return false
}

// IsDataset reports whether path holds a column.
func (s *Store) IsDataset(path string) bool {
	p, err := CleanPath(path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	t, err := s.resolve(p, 0)
	if err != nil {
		return false
	}
	_, err = os.Stat(t.store.datasetFile(t.path))
	return err == nil
}

// List returns the sorted names of the direct children of a group,
// local entries and links merged. An empty group lists the root.
func (s *Store) List(group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("list"); err != nil {
		return nil, err
	}

	g := strings.Trim(group, "/")
	t := target{store: s, path: g}
	if g != "" {
		p, err := CleanPath(g)
		if err != nil {
			return nil, NewError("list").Group(group).Cause(err).Err()
		}
		if t, err = s.resolve(p, 0); err != nil {
			return nil, err
		}
	}
	names, err := t.store.listLocal(t.path)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 && t.path != "" && !t.store.existsLocal(t.path) {
		return nil, NewError("list").Group(group).Cause(ErrDatasetNotFound).Err()
	}
	return names, nil
}

func (s *Store) listLocal(g string) ([]string, error) {
	seen := make(map[string]bool)
	entries, err := os.ReadDir(s.groupDir(g))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewError("list").Group(g).Cause(err).Err()
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			seen[name] = true
		case strings.HasSuffix(name, FileExt):
			seen[strings.TrimSuffix(name, FileExt)] = true
		}
	}
	prefix := ""
	if g != "" {
		prefix = g + "/"
	}
	for key := range s.links {
		if rest, ok := strings.CutPrefix(key, prefix); ok && rest != "" {
			child, _, _ := strings.Cut(rest, "/")
			seen[child] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// ListDatasets returns the column names directly under a group, skipping subgroups.
func (s *Store) ListDatasets(group string) ([]string, error) {
	names, err := s.List(group)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if s.IsDataset(Join(group, n)) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Delete removes a dataset, a group with everything below it, or a link.
// Deleting a missing path is not an error.
func (s *Store) Delete(path string) error {
	p, err := CleanPath(path)
	if err != nil {
		return NewError("delete").Dataset(path).Cause(err).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("delete"); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return NewError("delete").Dataset(p).Context("read-only").Cause(ErrInvalidPath).Err()
	}

	if _, ok := s.links[p]; ok {
		return s.removeLinkLocked(p)
	}
	// links below the deleted group go with it
	dropped := false
	for key := range s.links {
		if strings.HasPrefix(key, p+"/") {
			delete(s.links, key)
			dropped = true
		}
	}
	if dropped {
		if err := s.saveLinks(); err != nil {
			return err
		}
	}

	t, err := s.resolve(p, 0)
	if err != nil {
		return err
	}
	return t.store.deleteLocal(t.path)
}

func (s *Store) deleteLocal(p string) error {
	if err := os.Remove(s.datasetFile(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewError("delete").Dataset(p).Cause(err).Err()
	}
	if err := os.RemoveAll(s.groupDir(p)); err != nil {
		return NewError("delete").Group(p).Cause(err).Err()
	}
	s.invalidatePrefix(p)
	s.logger.Debug("deleted", logging.Dataset(p))
	return nil
}

func (s *Store) invalidate(p string) {
	if s.cache != nil {
		s.cache.Remove(s.datasetFile(p))
	}
}

func (s *Store) invalidatePrefix(p string) {
	if s.cache == nil {
		return
	}
	file := s.datasetFile(p)
	dir := s.groupDir(p) + string(filepath.Separator)
	for _, k := range s.cache.Keys() {
		if k == file || strings.HasPrefix(k, dir) {
			s.cache.Remove(k)
		}
	}
}
