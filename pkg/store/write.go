package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/table"
)

type writeMode int

const (
	modeCreate writeMode = iota
	modeReplace
	modeOverwrite
	modeAppend
)

func (m writeMode) String() string {
	switch m {
	case modeCreate:
		return "create"
	case modeReplace:
		return "replace"
	case modeOverwrite:
		return "overwrite"
	case modeAppend:
		return "append"
	}
	return "write"
}

// Create writes a new dataset. It fails with ErrDatasetExists if path is taken.
func (s *Store) Create(path string, c table.Column) error {
	return s.write(modeCreate, path, c)
}

// CreateOrReplace writes a dataset, replacing any existing one at path.
// Repeating the call with the same data leaves the archive unchanged.
func (s *Store) CreateOrReplace(path string, c table.Column) error {
	return s.write(modeReplace, path, c)
}

// Overwrite replaces the contents of an existing dataset with the same number of rows.
func (s *Store) Overwrite(path string, c table.Column) error {
	return s.write(modeOverwrite, path, c)
}

// Append extends a dataset with more rows of the same kind, creating it if missing.
func (s *Store) Append(path string, c table.Column) error {
	return s.write(modeAppend, path, c)
}

func (s *Store) write(mode writeMode, path string, c table.Column) error {
	op := mode.String()
	p, err := CleanPath(path)
	if err != nil {
		return NewError(op).Dataset(path).Cause(err).Err()
	}
	if c == nil {
		return NewError(op).Dataset(p).Context("nil column").Cause(ErrKindMismatch).Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return NewError(op).Dataset(p).Context("read-only").Cause(ErrInvalidPath).Err()
	}
	t, err := s.resolve(p, 0)
	if err != nil {
		return err
	}
	return t.store.writeLocal(mode, t.path, c)
}

func (s *Store) writeLocal(mode writeMode, p string, c table.Column) error {
	op := mode.String()
	file := s.datasetFile(p)
	_, statErr := os.Stat(file)
	exists := statErr == nil

	switch mode {
	case modeCreate:
		if exists {
			return NewError(op).Dataset(p).Cause(ErrDatasetExists).Err()
		}
		if info, err := os.Stat(s.groupDir(p)); err == nil && info.IsDir() {
			return NewError(op).Dataset(p).Context("a group has this name").Cause(ErrDatasetExists).Err()
		}
	case modeOverwrite:
		if !exists {
			return NotFoundError(op, p)
		}
		h, err := s.headerLocal(p)
		if err != nil {
			return err
		}
		if int(h.Rows) != c.Len() {
			return NewError(op).Dataset(p).Context(fmt.Sprintf("%d rows, have %d", c.Len(), h.Rows)).Cause(ErrLengthMismatch).Err()
		}
	case modeAppend:
		if exists {
			old, err := s.readLocal(p)
			if err != nil {
				return err
			}
			if old.Kind() != c.Kind() {
				return NewError(op).Dataset(p).Context(fmt.Sprintf("%s onto %s", c.Kind(), old.Kind())).Cause(ErrKindMismatch).Err()
			}
			if c, err = old.Append(c); err != nil {
				return NewError(op).Dataset(p).Cause(err).Err()
			}
		}
	}

	data, err := encodeColumn(c, s.opts.Codec)
	if err != nil {
		return NewError(op).Dataset(p).Cause(err).Err()
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return NewError(op).Dataset(p).Cause(err).Err()
	}
	if err := writeFileAtomic(file, data); err != nil {
		return NewError(op).Dataset(p).Cause(err).Err()
	}
	s.invalidate(p)

	s.opts.Metrics.RecordDatasetWrite(op, p, c.Len(), len(data))
	s.logger.Debug("wrote dataset",
		logging.Dataset(p),
		logging.String("op", op),
		logging.Rows(c.Len()),
		logging.String("kind", c.Kind().String()))
	return nil
}

// WriteTable writes every column of t under group with CreateOrReplace.
func (s *Store) WriteTable(group string, t *table.Table) error {
	for _, name := range t.Names() {
		c, err := t.Column(name)
		if err != nil {
			return err
		}
		if err := s.CreateOrReplace(Join(group, name), c); err != nil {
			return err
		}
	}
	return nil
}
