// Package ai runs YOLOv8 ONNX detectors on captured frames.
package ai

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"

	"gocv.io/x/gocv"
)

const (
	// InputSize is the square network input of the exported YOLOv8 models.
	InputSize = 640
	// NMSThreshold is the IoU above which overlapping boxes of one class are suppressed.
	NMSThreshold = 0.45
)

// DetectorService wraps one network. gocv.Net is not safe for concurrent
// Forward calls, so Detect serialises on mu.
type DetectorService struct {
	net        gocv.Net
	labels     []string
	confidence float32
	modelPath  string
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewDetectorService loads an ONNX model. labels maps class ids to names; a
// class id past the end of labels is reported as "class_<id>".
func NewDetectorService(modelPath string, labels []string, confidence float64, logger *logger.Logger) (*DetectorService, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	logger.Info("Detection network %s initialized (%d labels)", modelPath, len(labels))
	return &DetectorService{
		net:        net,
		labels:     labels,
		confidence: float32(confidence),
		modelPath:  modelPath,
		logger:     logger,
	}, nil
}

// Detect runs the network on a BGR frame and returns boxes in frame pixels.
func (s *DetectorService) Detect(frame gocv.Mat) ([]dto.Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(InputSize, InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.mu.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.mu.Unlock()
	defer output.Close()

	// YOLOv8 output is [1, 4+classes, anchors]
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v from %s", sizes, s.modelPath)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	scaleX := float32(frame.Cols()) / InputSize
	scaleY := float32(frame.Rows()) / InputSize
	candidates := decodeOutput(data, sizes[1], sizes[2], scaleX, scaleY, s.confidence)
	if len(candidates) == 0 {
		return nil, nil
	}

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		rects[i] = c.box.Rect()
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(rects, scores, s.confidence, NMSThreshold)

	detections := make([]dto.Detection, 0, len(keep))
	for _, idx := range keep {
		c := candidates[idx]
		detections = append(detections, dto.Detection{
			Box:        c.box.Clamp(frame.Cols(), frame.Rows()),
			Label:      s.Label(c.class),
			Confidence: float64(c.score),
		})
	}
	return detections, nil
}

// Label maps a class id to its name.
func (s *DetectorService) Label(classID int) string {
	if classID >= 0 && classID < len(s.labels) {
		return s.labels[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}

type candidate struct {
	box   dto.Box
	class int
	score float32
}

// decodeOutput reads a channel-major YOLOv8 tensor of attrs x anchors values:
// rows 0-3 hold cx, cy, w, h in network pixels, the remaining rows hold the
// per-class scores.
func decodeOutput(data []float32, attrs, anchors int, scaleX, scaleY, threshold float32) []candidate {
	if len(data) < attrs*anchors {
		return nil
	}
	at := func(row, col int) float32 { return data[row*anchors+col] }

	var out []candidate
	for i := 0; i < anchors; i++ {
		best, class := float32(0), -1
		for c := 4; c < attrs; c++ {
			if v := at(c, i); v > best {
				best, class = v, c-4
			}
		}
		if class < 0 || best < threshold {
			continue
		}

		cx, cy := at(0, i)*scaleX, at(1, i)*scaleY
		w, h := at(2, i)*scaleX, at(3, i)*scaleY
		out = append(out, candidate{
			box: dto.Box{
				X1: int(cx - w/2),
				Y1: int(cy - h/2),
				X2: int(cx + w/2),
				Y2: int(cy + h/2),
			},
			class: class,
			score: best,
		})
	}
	return out
}

// DrawDetections draws labelled boxes onto frame in place.
func DrawDetections(frame *gocv.Mat, detections []dto.Detection, c color.RGBA) error {
	for _, d := range detections {
		if err := gocv.Rectangle(frame, d.Box.Rect(), c, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %v", err)
		}
		label := fmt.Sprintf("%s (%.2f)", d.Label, d.Confidence)
		pt := image.Pt(d.Box.X1, d.Box.Y1-5)
		if err := gocv.PutText(frame, label, pt, gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
			return fmt.Errorf("failed to draw text: %v", err)
		}
	}
	return nil
}

// EncodeJPEG returns a copy of the JPEG encoding of frame.
func EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
