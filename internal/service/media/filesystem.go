package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStore keeps media under a root directory.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root %s: %w", absRoot, err)
	}
	return &FileStore{root: absRoot}, nil
}

func (fs *FileStore) Path(key string) string {
	return filepath.Join(fs.root, filepath.FromSlash(key))
}

// Put writes through a temp file so a reader never sees a half-copied clip.
func (fs *FileStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	full := fs.Path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (fs *FileStore) Open(ctx context.Context, key string) (*Object, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	file, err := os.Open(fs.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Object{Body: file, Size: st.Size(), ModifiedAt: st.ModTime()}, nil
}

func (fs *FileStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(fs.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
