// Package cas provides content-addressed storage for map files. Blobs are
// stored by their BLAKE3 digest, which deduplicates repeated backups of
// an unchanged map and lets a restore verify what it reads.
package cas

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when a blob with the given digest does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a digest is not a 64-character hex string.
var ErrInvalidHash = errors.New("invalid hash format")

var digestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

const indexName = "backups.jsonl"

// Store is a content-addressed blob store with a backup index.
type Store struct {
	root string
	mu   sync.Mutex
}

// BackupRecord is one entry of the backup index.
type BackupRecord struct {
	Name   string    `json:"name"`
	Path   string    `json:"path"`
	Digest string    `json:"digest"`
	Size   int64     `json:"size"`
	Time   time.Time `json:"time"`
}

// NewStore creates a store at root, creating the directory layout.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "blobs", "blake3"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Put stores data and returns its digest. Storing existing content is a
// no-op.
func (s *Store) Put(data []byte) (string, error) {
	digest := Digest(data)
	if s.Exists(digest) {
		return digest, nil
	}
	return digest, s.write(digest, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// PutReader stores the content of r without holding it in memory.
func (s *Store) PutReader(r io.Reader) (string, int64, error) {
	dir := filepath.Join(s.root, "blobs", "blake3")
	tempFile, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	d := NewDigester()
	if _, err := io.Copy(io.MultiWriter(tempFile, d), r); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	digest := d.Sum()
	if s.Exists(digest) {
		os.Remove(tempPath)
		return digest, d.Size(), nil
	}
	if err := s.place(tempPath, digest); err != nil {
		return "", 0, err
	}
	return digest, d.Size(), nil
}

// write stores a blob atomically through a temp file.
func (s *Store) write(digest string, fill func(io.Writer) error) error {
	dir := filepath.Join(s.root, "blobs", "blake3")
	tempFile, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	if err := fill(tempFile); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return s.place(tempPath, digest)
}

func (s *Store) place(tempPath, digest string) error {
	blobPath := s.pathFor(digest)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0755); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}
	if err := osRename(tempPath, blobPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename blob: %w", err)
	}
	return nil
}

// Get returns the blob with the given digest.
func (s *Store) Get(digest string) ([]byte, error) {
	if !digestPattern.MatchString(digest) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.pathFor(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	if got := Digest(data); got != digest {
		return nil, fmt.Errorf("blob %s is corrupt: content digest %s", digest, got)
	}
	return data, nil
}

// Exists reports whether a blob with the given digest is stored.
func (s *Store) Exists(digest string) bool {
	if !digestPattern.MatchString(digest) {
		return false
	}
	_, err := os.Stat(s.pathFor(digest))
	return err == nil
}

// pathFor returns <root>/blobs/blake3/<first2>/<digest>.
func (s *Store) pathFor(digest string) string {
	return filepath.Join(s.root, "blobs", "blake3", digest[:2], digest)
}

// Backup stores the current content of the file at path and records it in
// the backup index. A missing file is not an error and returns nil.
func (s *Store) Backup(path string) (*BackupRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s for backup: %w", path, err)
	}
	defer f.Close()
	digest, size, err := s.PutReader(f)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rec := &BackupRecord{
		Name:   filepath.Base(path),
		Path:   abs,
		Digest: digest,
		Size:   size,
		Time:   time.Now().UTC(),
	}
	if err := s.appendIndex(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) appendIndex(rec *BackupRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal backup record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(s.root, indexName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open backup index: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to write backup index: %w", err)
	}
	return f.Close()
}

// Backups returns the index records for files named name, oldest first.
// An empty name returns every record.
func (s *Store) Backups(name string) ([]BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(filepath.Join(s.root, indexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open backup index: %w", err)
	}
	defer f.Close()
	var out []BackupRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec BackupRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse backup index: %w", err)
		}
		if name == "" || rec.Name == name {
			out = append(out, rec)
		}
	}
	return out, sc.Err()
}

// Restore writes the blob with the given digest to path.
func (s *Store) Restore(digest, path string) error {
	data, err := s.Get(digest)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
