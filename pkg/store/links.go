package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/skyfactory/pkg/logging"
)

const (
	linksFile    = "links.yaml"
	maxLinkDepth = 8
)

// Link is a soft reference from a path in this archive to a path in another.
type Link struct {
	Store string `yaml:"store"` // target archive directory, relative to this root or absolute
	Path  string `yaml:"path"`  // dataset or group inside the target
}

type linksDocument struct {
	Links map[string]Link `yaml:"links"`
}

func (s *Store) loadLinks() error {
	s.links = make(map[string]Link)
	data, err := os.ReadFile(filepath.Join(s.root, linksFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return NewError("load").Link(linksFile).Cause(err).Err()
	}
	var doc linksDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return NewError("load").Link(linksFile).Cause(fmt.Errorf("%w: %v", ErrCorrupt, err)).Err()
	}
	for k, v := range doc.Links {
		s.links[k] = v
	}
	return nil
}

func (s *Store) saveLinks() error {
	path := filepath.Join(s.root, linksFile)
	if len(s.links) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return NewError("save").Link(linksFile).Cause(err).Err()
		}
		return nil
	}
	data, err := yaml.Marshal(linksDocument{Links: s.links})
	if err != nil {
		return NewError("save").Link(linksFile).Cause(err).Err()
	}
	if err := writeFileAtomic(path, data); err != nil {
		return NewError("save").Link(linksFile).Cause(err).Err()
	}
	return nil
}

// matchLink finds the longest link key equal to p or a prefix group of p.
func (s *Store) matchLink(p string) (string, Link, bool) {
	best := ""
	var link Link
	for key, l := range s.links {
		if (p == key || strings.HasPrefix(p, key+"/")) && len(key) > len(best) {
			best, link = key, l
		}
	}
	return best, link, best != ""
}

func (s *Store) openRemote(dir string) (*Store, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.root, dir)
	}
	dir = filepath.Clean(dir)
	if dir == s.root {
		return s, nil
	}
	if r, ok := s.remote[dir]; ok {
		return r, nil
	}
	r, err := Open(dir, s.opts)
	if err != nil {
		return nil, NewError("resolve").Store(dir).Context("link target").Cause(err).Err()
	}
	s.remote[dir] = r
	return r, nil
}

// Link records path as a soft reference to targetPath inside the archive at
// targetStore, replacing any local dataset, group or link at path. The target
// does not need to exist yet; reads through a dangling link fail with
// ErrDatasetNotFound.
func (s *Store) Link(path, targetStore, targetPath string) error {
	p, err := CleanPath(path)
	if err != nil {
		return NewError("link").Link(path).Cause(err).Err()
	}
	tp, err := CleanPath(targetPath)
	if err != nil {
		return NewError("link").Link(path).Context("target " + targetPath).Cause(err).Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("link"); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return NewError("link").Link(p).Context("read-only").Cause(ErrInvalidPath).Err()
	}

	storeRef := targetStore
	if abs, err := filepath.Abs(targetStore); err == nil {
		if abs == s.root && tp == p {
			return NewError("link").Link(p).Context("link to itself").Cause(ErrInvalidPath).Err()
		}
		if rel, err := filepath.Rel(s.root, abs); err == nil {
			storeRef = rel
		} else {
			storeRef = abs
		}
	}

	if err := s.deleteLocal(p); err != nil {
		return err
	}
	for key := range s.links {
		if strings.HasPrefix(key, p+"/") {
			delete(s.links, key)
		}
	}
	s.links[p] = Link{Store: filepath.ToSlash(storeRef), Path: tp}
	if err := s.saveLinks(); err != nil {
		return err
	}
	s.opts.Metrics.RecordLink()
	s.logger.Debug("linked", logging.Dataset(p), logging.String("target_store", storeRef), logging.String("target_path", tp))
	return nil
}

// Links returns a copy of the external links defined at this archive's level.
func (s *Store) Links() map[string]Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Link, len(s.links))
	for k, v := range s.links {
		out[k] = v
	}
	return out
}

// IsLink reports whether path is exactly an external link.
func (s *Store) IsLink(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[strings.Trim(path, "/")]
	return ok
}

func (s *Store) removeLinkLocked(p string) error {
	delete(s.links, p)
	return s.saveLinks()
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
