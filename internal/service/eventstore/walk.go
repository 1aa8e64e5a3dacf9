package eventstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EventRef locates one event directory in the tree.
type EventRef struct {
	CameraID string
	DirID    string // event id taken from the directory name
	Dir      string
}

// Cameras lists the camera directories under the root, sorted.
func (s *Store) Cameras() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence root: %w", err)
	}
	var cams []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			cams = append(cams, e.Name())
		}
	}
	sort.Strings(cams)
	return cams, nil
}

// ValidCameraID reports whether id names a single directory directly under the root.
func ValidCameraID(id string) bool {
	return id != "" && id != "." && id != ".." &&
		!strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

// Events lists the event directories of one camera, or of every camera when
// cameraID is empty. Entries that do not follow the event_<id> naming are skipped.
func (s *Store) Events(cameraID string) ([]EventRef, error) {
	if cameraID != "" && !ValidCameraID(cameraID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCamera, cameraID)
	}
	cams := []string{cameraID}
	if cameraID == "" {
		var err error
		if cams, err = s.Cameras(); err != nil {
			return nil, err
		}
	}

	var refs []EventRef
	for _, cam := range cams {
		camDir := filepath.Join(s.root, cam)
		entries, err := os.ReadDir(camDir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read camera directory %s: %w", cam, err)
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), EventPrefix) {
				continue
			}
			refs = append(refs, EventRef{
				CameraID: cam,
				DirID:    strings.TrimPrefix(e.Name(), EventPrefix),
				Dir:      filepath.Join(camDir, e.Name()),
			})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CameraID != refs[j].CameraID {
			return refs[i].CameraID < refs[j].CameraID
		}
		return refs[i].DirID < refs[j].DirID
	})
	return refs, nil
}
