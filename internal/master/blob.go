package master

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sitevault/sitevault/internal/store"
)

// BlobStore is where the sealed master secret lives. ReadBlob returns an
// error wrapping os.ErrNotExist when nothing has been persisted yet.
type BlobStore interface {
	ReadBlob() ([]byte, error)
	WriteBlob(blob []byte) error
}

// FileBlob keeps the blob in a single file, replaced atomically on write.
type FileBlob struct {
	path string
}

// NewFileBlob returns a FileBlob at path.
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: filepath.Clean(path)}
}

// Path returns the blob file path.
func (f *FileBlob) Path() string {
	return f.path
}

func (f *FileBlob) ReadBlob() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f *FileBlob) WriteBlob(blob []byte) error {
	if err := store.AtomicWriteFile(f.path, blob); err != nil {
		return fmt.Errorf("failed to write master file: %w", err)
	}
	return nil
}
