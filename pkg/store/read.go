package store

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/skyfactory/pkg/table"
)

// Read returns the column at path. The result is a private copy.
func (s *Store) Read(path string) (table.Column, error) {
	p, err := CleanPath(path)
	if err != nil {
		return nil, NewError("read").Dataset(path).Cause(err).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("read"); err != nil {
		return nil, err
	}
	t, err := s.resolve(p, 0)
	if err != nil {
		return nil, err
	}
	c, err := t.store.readLocal(t.path)
	if err != nil {
		return nil, err
	}
	return cloneColumn(c), nil
}

// ReadInt64 reads an integer column; float columns are rejected.
func (s *Store) ReadInt64(path string) (table.Int64s, error) {
	c, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	v, ok := c.(table.Int64s)
	if !ok {
		return nil, NewError("read").Dataset(path).Context("want int64, have " + c.Kind().String()).Cause(ErrKindMismatch).Err()
	}
	return v, nil
}

// ReadFloat64 reads a column as float64, converting integers.
func (s *Store) ReadFloat64(path string) (table.Float64s, error) {
	c, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	return table.Float64sFrom(c), nil
}

// Len returns the row count of a dataset from its header alone.
func (s *Store) Len(path string) (int, error) {
	h, err := s.Header(path)
	if err != nil {
		return 0, err
	}
	return int(h.Rows), nil
}

// Header returns the header of a dataset without decoding it.
func (s *Store) Header(path string) (ColumnHeader, error) {
	p, err := CleanPath(path)
	if err != nil {
		return ColumnHeader{}, NewError("stat").Dataset(path).Cause(err).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("stat"); err != nil {
		return ColumnHeader{}, err
	}
	t, err := s.resolve(p, 0)
	if err != nil {
		return ColumnHeader{}, err
	}
	return t.store.headerLocal(t.path)
}

func (s *Store) headerLocal(p string) (ColumnHeader, error) {
	r, err := mmap.Open(s.datasetFile(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ColumnHeader{}, NotFoundError("stat", p)
		}
		return ColumnHeader{}, NewError("stat").Dataset(p).Cause(err).Err()
	}
	defer r.Close()

	var buf [HeaderSize]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return ColumnHeader{}, CorruptError(p, "short header")
	}
	h, err := parseHeader(buf[:])
	if err != nil {
		return h, CorruptError(p, err.Error())
	}
	return h, nil
}

// readLocal returns the shared cached column; callers must not modify it.
func (s *Store) readLocal(p string) (table.Column, error) {
	file := s.datasetFile(p)
	if s.cache != nil {
		if c, ok := s.cache.Get(file); ok {
			s.opts.Metrics.RecordColumnRead("", true, 0)
			return c, nil
		}
	}

	start := time.Now()
	r, err := mmap.Open(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NotFoundError("read", p)
		}
		return nil, NewError("read").Dataset(p).Cause(err).Err()
	}
	defer r.Close()

	c, h, err := decodeColumn(r, int64(r.Len()))
	if err != nil {
		s.opts.Metrics.RecordChecksumFailure()
		return nil, CorruptError(p, err.Error())
	}
	s.opts.Metrics.RecordColumnRead(h.Codec.String(), false, time.Since(start))

	if s.cache != nil {
		s.cache.Add(file, c)
	}
	return c, nil
}

func cloneColumn(c table.Column) table.Column {
	switch v := c.(type) {
	case table.Int64s:
		return slices.Clone(v)
	case table.Float64s:
		return slices.Clone(v)
	}
	return c
}

// ReadTable reads the named columns of a group into a table. With no names,
// every dataset directly under the group is read.
func (s *Store) ReadTable(group string, columns ...string) (*table.Table, error) {
	if len(columns) == 0 {
		names, err := s.ListDatasets(group)
		if err != nil {
			return nil, err
		}
		columns = names
	}
	t := table.New()
	for _, name := range columns {
		c, err := s.Read(Join(group, name))
		if err != nil {
			return nil, err
		}
		if err := t.Set(name, c); err != nil {
			return nil, NewError("read").Group(group).Context(name).Cause(fmt.Errorf("%w: %v", ErrLengthMismatch, err)).Err()
		}
	}
	return t, nil
}
