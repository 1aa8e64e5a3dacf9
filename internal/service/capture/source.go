package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by file sources after the last frame.
var ErrEndOfStream = errors.New("end of stream")

// Source yields decoded BGR frames together with their capture time.
type Source interface {
	Read(ctx context.Context, dst *gocv.Mat) (time.Time, error)
	// Live reports whether the source is a live feed that should be reopened on failure.
	Live() bool
	Close() error
}

// OpenSource opens a registered source address: udp://host:port for pushed
// JPEG packets, anything else through the OpenCV video backends.
func OpenSource(address string) (Source, error) {
	if strings.HasPrefix(address, "udp://") {
		return ListenUDP(strings.TrimPrefix(address, "udp://"))
	}
	return OpenVideoSource(address)
}

// VideoSource reads from a camera device, a network stream or a video file.
// Frames of a file are stamped with their stream position so that timing
// does not depend on how fast the file is decoded.
type VideoSource struct {
	capture *gocv.VideoCapture
	address string
	file    bool
	opened  time.Time
}

func OpenVideoSource(address string) (*VideoSource, error) {
	capture, err := gocv.OpenVideoCapture(address)
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %s: %w", address, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video source %s could not be opened", address)
	}
	return &VideoSource{
		capture: capture,
		address: address,
		file:    isFile(address),
		opened:  time.Now(),
	}, nil
}

func isFile(address string) bool {
	if strings.Contains(address, "://") {
		return false
	}
	info, err := os.Stat(address)
	return err == nil && info.Mode().IsRegular()
}

func (v *VideoSource) Read(ctx context.Context, dst *gocv.Mat) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if ok := v.capture.Read(dst); !ok || dst.Empty() {
		if v.file {
			return time.Time{}, ErrEndOfStream
		}
		return time.Time{}, fmt.Errorf("failed to read frame from %s", v.address)
	}
	if v.file {
		msec := v.capture.Get(gocv.VideoCapturePosMsec)
		return v.opened.Add(time.Duration(msec * float64(time.Millisecond))), nil
	}
	return time.Now(), nil
}

func (v *VideoSource) Live() bool {
	return !v.file
}

func (v *VideoSource) Close() error {
	return v.capture.Close()
}
