package dto

// Detection is one labelled box produced by a detector for a single frame.
type Detection struct {
	Box        Box     `json:"box"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Boxes returns the boxes of the given detections in order.
func Boxes(dets []Detection) []Box {
	out := make([]Box, len(dets))
	for i, d := range dets {
		out[i] = d.Box
	}
	return out
}
