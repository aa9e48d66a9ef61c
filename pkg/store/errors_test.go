package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestStorageError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *StorageError
		expected string
	}{
		{
			name: "with path",
			err: &StorageError{
				Op:     "create",
				Entity: "dataset",
				Path:   "index/select",
				Cause:  ErrDatasetExists,
			},
			expected: "create dataset index/select: dataset already exists",
		},
		{
			name: "with path and context",
			err: &StorageError{
				Op:      "read",
				Entity:  "dataset",
				Path:    "catalog/gold/ra",
				Context: "checksum mismatch",
				Cause:   ErrCorrupt,
			},
			expected: "read dataset catalog/gold/ra (checksum mismatch): column file corrupt",
		},
		{
			name: "with context only",
			err: &StorageError{
				Op:      "open",
				Entity:  "store",
				Context: "/data/master",
				Cause:   fmt.Errorf("permission denied"),
			},
			expected: "open store (/data/master): permission denied",
		},
		{
			name: "minimal",
			err: &StorageError{
				Op:     "close",
				Entity: "store",
				Cause:  fmt.Errorf("busy"),
			},
			expected: "close store: busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStorageError_IsAndUnwrap(t *testing.T) {
	err := NewError("read").Dataset("x").Cause(ErrDatasetNotFound).Err()

	if !errors.Is(err, ErrDatasetNotFound) {
		t.Error("errors.Is should match the cause")
	}
	if errors.Is(err, ErrCorrupt) {
		t.Error("errors.Is should not match another sentinel")
	}

	wrapped := fmt.Errorf("stage master: %w", err)
	var serr *StorageError
	if !errors.As(wrapped, &serr) {
		t.Fatal("errors.As should find the StorageError")
	}
	if serr.Path != "x" || serr.Op != "read" {
		t.Errorf("unexpected fields: %+v", serr)
	}
	if errors.Unwrap(serr) != ErrDatasetNotFound {
		t.Error("Unwrap should return the cause")
	}
}

func TestErrorBuilder(t *testing.T) {
	e := NewError("link").Link("catalog/gold").Context("read-only").Cause(ErrInvalidPath).Build()
	if e.Entity != "link" || e.Path != "catalog/gold" || e.Context != "read-only" {
		t.Errorf("unexpected builder result: %+v", e)
	}

	g := NewError("list").Group("index").Cause(ErrDatasetNotFound).Build()
	if g.Entity != "group" {
		t.Errorf("Entity = %s, want group", g.Entity)
	}

	if !IsNotFound(NotFoundError("read", "a")) {
		t.Error("NotFoundError should satisfy IsNotFound")
	}
	if !errors.Is(CorruptError("a", "bad magic"), ErrCorrupt) {
		t.Error("CorruptError should wrap ErrCorrupt")
	}
}
