// Package registry maps camera source addresses to their identity and location.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrNotRegistered is returned for a source address that has no registry entry.
var ErrNotRegistered = errors.New("camera not registered")

// Camera is one registry entry.
type Camera struct {
	CameraID string `json:"camera_id"`
	Source   string `json:"source"`
	Location string `json:"location"`
	Ward     string `json:"ward,omitempty"`
	City     string `json:"city,omitempty"`
}

type file struct {
	Cameras []Camera `json:"cameras"`
}

// Registry is read-only after Load.
type Registry struct {
	bySource map[string]Camera
	byID     map[string]Camera
}

// Load reads the registry file. Duplicate sources or camera ids are rejected.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera registry: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse camera registry %s: %w", path, err)
	}
	return New(f.Cameras)
}

func New(cameras []Camera) (*Registry, error) {
	r := &Registry{
		bySource: make(map[string]Camera, len(cameras)),
		byID:     make(map[string]Camera, len(cameras)),
	}
	for _, c := range cameras {
		c.Source = strings.TrimSpace(c.Source)
		if c.CameraID == "" || c.Source == "" {
			return nil, fmt.Errorf("registry entry needs camera_id and source: %+v", c)
		}
		if strings.ContainsAny(c.CameraID, `/\`) || c.CameraID == "." || c.CameraID == ".." {
			return nil, fmt.Errorf("invalid camera_id %q", c.CameraID)
		}
		if _, dup := r.bySource[c.Source]; dup {
			return nil, fmt.Errorf("duplicate camera source %s", c.Source)
		}
		if _, dup := r.byID[c.CameraID]; dup {
			return nil, fmt.Errorf("duplicate camera_id %s", c.CameraID)
		}
		r.bySource[c.Source] = c
		r.byID[c.CameraID] = c
	}
	return r, nil
}

// Lookup resolves a source address.
func (r *Registry) Lookup(source string) (Camera, error) {
	c, ok := r.bySource[strings.TrimSpace(source)]
	if !ok {
		return Camera{}, fmt.Errorf("%w: %s", ErrNotRegistered, source)
	}
	return c, nil
}

// ByID resolves a camera id.
func (r *Registry) ByID(cameraID string) (Camera, bool) {
	c, ok := r.byID[cameraID]
	return c, ok
}

// Cameras returns every entry sorted by camera id.
func (r *Registry) Cameras() []Camera {
	out := make([]Camera, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}
