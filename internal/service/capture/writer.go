package capture

import (
	"fmt"

	"dumpwatch/internal/service/recorder"

	"gocv.io/x/gocv"
)

type videoSink struct {
	writer *gocv.VideoWriter
}

func (s *videoSink) Write(frame gocv.Mat) error {
	return s.writer.Write(frame)
}

func (s *videoSink) Close() error {
	return s.writer.Close()
}

// VideoWriterOpener opens clips with the given fourcc codec and frame rate.
// The frame size is taken from the first frame of the clip.
func VideoWriterOpener(codec string, fps float64) recorder.SinkOpener[gocv.Mat] {
	return func(path string, first gocv.Mat) (recorder.Sink[gocv.Mat], error) {
		writer, err := gocv.VideoWriterFile(path, codec, fps, first.Cols(), first.Rows(), true)
		if err != nil {
			return nil, fmt.Errorf("failed to open video writer: %w", err)
		}
		if !writer.IsOpened() {
			writer.Close()
			return nil, fmt.Errorf("video writer for %s did not open (codec %s)", path, codec)
		}
		return &videoSink{writer: writer}, nil
	}
}
