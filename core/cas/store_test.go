package cas

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/blake3"
)

func TestPutAndGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	data := []byte("OTBM\x00map bytes")
	digest, err := store.Put(data)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	sum := blake3.Sum256(data)
	if want := Digest(data); digest != want || len(digest) != 2*len(sum) {
		t.Errorf("digest = %s, want %s", digest, want)
	}
	got, err := store.Get(digest)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
	again, err := store.Put(data)
	if err != nil || again != digest {
		t.Errorf("second Put() = %s, %v", again, err)
	}
}

func TestGetErrors(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		digest string
		want   error
	}{
		{"invalid", "not-a-hash", ErrInvalidHash},
		{"uppercase", strings.Repeat("A", 64), ErrInvalidHash},
		{"missing", strings.Repeat("a", 64), ErrBlobNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Get(tt.digest); !errors.Is(err, tt.want) {
				t.Errorf("Get() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCorruptBlobDetected(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	digest, err := store.Put([]byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.pathFor(digest), []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(digest); err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("Get() error = %v, want corrupt blob", err)
	}
}

func TestRenameFailureCleansUp(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	orig := osRename
	osRename = func(string, string) error { return errors.New("rename refused") }
	defer func() { osRename = orig }()

	if _, err := store.Put([]byte("data")); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(filepath.Join(root, "blobs", "blake3"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".blob-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}
	mapPath := filepath.Join(dir, "world.otbm")

	rec, err := store.Backup(mapPath)
	if err != nil || rec != nil {
		t.Fatalf("Backup() of missing file = %v, %v", rec, err)
	}

	for _, content := range []string{"version one", "version two", "version two"} {
		if err := os.WriteFile(mapPath, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Backup(mapPath); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
	}
	recs, err := store.Backups("world.otbm")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[1].Digest != recs[2].Digest || recs[0].Digest == recs[1].Digest {
		t.Error("identical content should share a digest")
	}
	if recs[0].Size != int64(len("version one")) {
		t.Errorf("size = %d", recs[0].Size)
	}
	if other, _ := store.Backups("other.otbm"); len(other) != 0 {
		t.Errorf("unexpected records %v", other)
	}

	out := filepath.Join(dir, "restored.otbm")
	if err := store.Restore(recs[0].Digest, out); err != nil {
		t.Fatal(err)
	}
	if got, _ := os.ReadFile(out); string(got) != "version one" {
		t.Errorf("restored %q", got)
	}
}

func TestDigester(t *testing.T) {
	data := bytes.Repeat([]byte("tile"), 10000)
	d := NewDigester()
	for i := 0; i < len(data); i += 333 {
		end := i + 333
		if end > len(data) {
			end = len(data)
		}
		d.Write(data[i:end])
	}
	if d.Sum() != Digest(data) || d.Size() != int64(len(data)) {
		t.Error("streaming digest differs from one-shot digest")
	}
	sum, n, err := DigestReader(bytes.NewReader(data))
	if err != nil || sum != Digest(data) || n != int64(len(data)) {
		t.Errorf("DigestReader() = %s, %d, %v", sum, n, err)
	}
}
