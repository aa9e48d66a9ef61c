package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const metaDir = "meta"

// WriteMeta stores v as meta/<name>.yaml next to the datasets.
func (s *Store) WriteMeta(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("write_meta"); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return NewError("write_meta").Dataset(name).Cause(err).Err()
	}
	if err := writeFileAtomic(filepath.Join(s.root, metaDir, name+".yaml"), data); err != nil {
		return NewError("write_meta").Dataset(name).Cause(err).Err()
	}
	return nil
}

// ReadMeta decodes meta/<name>.yaml into v.
func (s *Store) ReadMeta(name string, v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.root, metaDir, name+".yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return NotFoundError("read_meta", metaDir+"/"+name)
	}
	if err != nil {
		return NewError("read_meta").Dataset(name).Cause(err).Err()
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return NewError("read_meta").Dataset(name).Cause(err).Err()
	}
	return nil
}
