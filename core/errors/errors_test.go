package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestTaxonomySentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantMsg  string
		wantBase error
	}{
		{
			name:     "io with path",
			err:      &IOError{Operation: "open", Path: "world.otbm", Err: io.ErrUnexpectedEOF},
			wantMsg:  "failed to open world.otbm: unexpected EOF",
			wantBase: ErrIO,
		},
		{
			name:     "read",
			err:      &ReadError{Offset: 12, Want: 4, Got: 2},
			wantMsg:  "read at offset 12: wanted 4 bytes, got 2",
			wantBase: ErrRead,
		},
		{
			name:     "write",
			err:      &WriteError{Offset: 0, Want: 8, Got: 3},
			wantMsg:  "write at offset 0: wrote 3 of 8 bytes",
			wantBase: ErrWrite,
		},
		{
			name:     "unrecognized",
			err:      &UnrecognizedFormatError{Identifier: []byte("ABCD")},
			wantMsg:  "unrecognized format: identifier 41 42 43 44",
			wantBase: ErrUnrecognizedFormat,
		},
		{
			name:     "type mismatch",
			err:      NewTypeMismatch("tile area", 9, 5, 14),
			wantMsg:  "tile area: unexpected node type 9 (want one of [5 14])",
			wantBase: ErrTypeMismatch,
		},
		{
			name:     "structure",
			err:      NewStructure("writer", "end node with %d open nodes", 0),
			wantMsg:  "writer: end node with 0 open nodes",
			wantBase: ErrStructure,
		},
		{
			name:     "unsupported version",
			err:      NewUnsupportedVersion("client", "7.00", "not in version table"),
			wantMsg:  "unsupported client version 7.00: not in version table",
			wantBase: ErrUnsupportedVersion,
		},
		{
			name:     "encoding",
			err:      NewEncoding("string of %d bytes exceeds short form", 70000),
			wantMsg:  "encoding: string of 70000 bytes exceeds short form",
			wantBase: ErrEncoding,
		},
		{
			name:     "not found",
			err:      NewNotFound("job", "42"),
			wantMsg:  "job not found: 42",
			wantBase: ErrNotFound,
		},
		{
			name:     "validation",
			err:      NewValidation("width", "must be positive"),
			wantMsg:  "validation failed for width: must be positive",
			wantBase: ErrInvalidInput,
		},
		{
			name:     "parse",
			err:      NewParse("rules", "default.rules", "unexpected token"),
			wantMsg:  "failed to parse rules at default.rules: unexpected token",
			wantBase: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, tt.wantBase) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.wantBase)
			}
		})
	}
}

func TestIOErrorKeepsCause(t *testing.T) {
	err := NewIO("close", "", io.ErrClosedPipe)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("IOError should unwrap to its cause")
	}
	if !errors.Is(err, ErrIO) {
		t.Error("IOError should match ErrIO")
	}
	if got := err.Error(); got != "failed to close: io: read/write on closed pipe" {
		t.Errorf("Error() = %q", got)
	}
}

func TestReadErrorKeepsCause(t *testing.T) {
	err := &ReadError{Want: 2, Got: 0, Err: io.EOF}
	if !errors.Is(err, io.EOF) || !errors.Is(err, ErrRead) {
		t.Errorf("ReadError should match both io.EOF and ErrRead")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}

	base := NewStructure("", "unclosed node")
	wrapped := Wrapf(base, "save %s", "map.otbm")
	if got := wrapped.Error(); got != "save map.otbm: unclosed node" {
		t.Errorf("Wrapf() = %q", got)
	}

	var se *StructureError
	if !As(wrapped, &se) {
		t.Fatal("As() should find StructureError through wrapping")
	}
	if !Is(fmt.Errorf("outer: %w", wrapped), ErrStructure) {
		t.Error("Is() should see ErrStructure through two layers")
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&UnrecognizedFormatError{}, true},
		{NewUnsupportedVersion("structure", "9", ""), true},
		{NewIO("open", "x", io.EOF), true},
		{ErrCancelled, true},
		{&ReadError{}, false},
		{NewStructure("", "x"), false},
		{NewTypeMismatch("item", 1, 6), false},
	}
	for _, tt := range tests {
		if got := Fatal(tt.err); got != tt.want {
			t.Errorf("Fatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
