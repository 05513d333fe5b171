package mappings

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
)

// Encoding names a table file layout.
type Encoding string

const (
	EncodingXML    Encoding = "xml"
	EncodingYAML   Encoding = "yaml"
	EncodingSQLite Encoding = "sqlite"
)

// EncodingFor picks the layout from a file extension.
func EncodingFor(path string) (Encoding, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return EncodingXML, nil
	case ".yaml", ".yml":
		return EncodingYAML, nil
	case ".db", ".sqlite", ".sqlite3":
		return EncodingSQLite, nil
	}
	return "", errors.NewValidation("path", "unknown mapping table extension: "+path)
}

// LoadFile adds the mappings stored at path to t.
func LoadFile(ctx context.Context, t *Table, path string) error {
	enc, err := EncodingFor(path)
	if err != nil {
		return err
	}
	if enc == EncodingSQLite {
		if _, err := os.Stat(path); err != nil {
			return errors.NewIO("open", path, err)
		}
		return LoadSQLite(ctx, t, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.NewIO("open", path, err)
	}
	defer f.Close()
	if enc == EncodingXML {
		return ReadXML(t, f, path)
	}
	return ReadYAML(t, f, path)
}

// SaveFile writes t to path in the layout its extension names.
func SaveFile(ctx context.Context, t *Table, path string) error {
	enc, err := EncodingFor(path)
	if err != nil {
		return err
	}
	if enc == EncodingSQLite {
		return SaveSQLite(ctx, t, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	if enc == EncodingXML {
		err = WriteXML(t, f)
	} else {
		err = WriteYAML(t, f)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.NewIO("close", path, cerr)
	}
	return err
}

// LoadFiles builds one table from several files; later files win.
func LoadFiles(ctx context.Context, paths ...string) (*Table, error) {
	t := NewTable()
	for _, p := range paths {
		if err := LoadFile(ctx, t, p); err != nil {
			return nil, err
		}
	}
	return t, nil
}
