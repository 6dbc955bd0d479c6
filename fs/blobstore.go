// Package fs provides the filesystem blob store backend.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sharedcode/cascade"
)

// BlobStore maps CAS keys to files under a hex fan-out hierarchy via ToFilePath.
// It has no caching built in; caller code can apply caching on top of it.
type blobStore struct {
	basePath   string
	toFilePath ToFilePathFunc
}

// Directory/File permission.
const permission os.FileMode = os.ModeSticky | os.ModePerm

// NewBlobStore instantiates a new blob store rooted at basePath.
// If toFilePath is nil, the default fan-out layout is used.
func NewBlobStore(basePath string, toFilePath ToFilePathFunc) cascade.BlobStore {
	if toFilePath == nil {
		toFilePath = DefaultToFilePath
	}
	return &blobStore{
		basePath:   basePath,
		toFilePath: toFilePath,
	}
}

func (b blobStore) filename(key cascade.Key) string {
	return filepath.Join(b.toFilePath(b.basePath, key), key.Hex())
}

// Has reports whether the blob's file exists.
func (b blobStore) Has(ctx context.Context, key cascade.Key) (bool, error) {
	_, err := os.Stat(b.filename(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return true, nil
}

// Get reads and returns the blob bytes, or nil when absent.
func (b blobStore) Get(ctx context.Context, key cascade.Key) ([]byte, error) {
	ba, err := os.ReadFile(b.filename(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return ba, nil
}

// Put writes the blob under its computed file path, creating directories as
// needed. The write goes to a temp file first and is renamed into place so
// concurrent duplicate puts both succeed without corruption.
func (b blobStore) Put(ctx context.Context, key cascade.Key, ba []byte) error {
	if actual := cascade.NewKey(ba); actual != key {
		return cascade.Error{
			Code:     cascade.HashMismatch,
			Err:      fmt.Errorf("expected key %s, actual %s", key, actual),
			UserData: actual,
		}
	}
	fn := b.filename(key)
	if _, err := os.Stat(fn); err == nil {
		// Blobs are immutable; an existing file already holds these bytes.
		return nil
	}
	fp := filepath.Dir(fn)
	if err := os.MkdirAll(fp, permission); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	tmp, err := os.CreateTemp(fp, key.Hex()+".tmp*")
	if err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if _, err := tmp.Write(ba); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if err := os.Rename(tmp.Name(), fn); err != nil {
		os.Remove(tmp.Name())
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

// Erase deletes the blob's file. A non-existent file is ignored.
func (b blobStore) Erase(ctx context.Context, key cascade.Key) error {
	fn := b.filename(key)
	if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}
