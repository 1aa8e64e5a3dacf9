// Package media stores the catalogued copies of clips and plate crops.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"
	"time"
)

var ErrNotFound = errors.New("media object not found")

// Store is a blob store addressed by slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Open returns the object. The caller closes Object.Body.
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// Object is one stored blob.
type Object struct {
	Body       io.ReadCloser
	Size       int64
	ModifiedAt time.Time
}

// VideoKey is where a catalogued clip is kept.
func VideoKey(cameraID, eventID, file string) string {
	return path.Join("dumping_videos", cameraID, eventID, path.Base(file))
}

// PlateKey is where a catalogued plate crop is kept.
func PlateKey(cameraID, eventID, file string) string {
	return path.Join("plate_images", cameraID, eventID, path.Base(file))
}

// PutFile copies a local file into the store.
func PutFile(ctx context.Context, s Store, key, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.Put(ctx, key, f, ContentType(filename))
}

// evidenceTypes covers the files the pipeline writes; the system mime table
// is not guaranteed to know video types.
var evidenceTypes = map[string]string{
	".mp4": "video/mp4",
	".avi": "video/x-msvideo",
	".jpg": "image/jpeg",
}

func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := evidenceTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func validKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid media key %q", key)
	}
	return nil
}
