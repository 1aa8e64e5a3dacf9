package capture

import (
	"testing"

	"dumpwatch/internal/dto"

	"github.com/stretchr/testify/require"
)

func TestJPEGAssembler(t *testing.T) {
	var a jpegAssembler

	_, ok := a.Feed([]byte{0xFF, 0xD8, 0x01, 0x02})
	require.False(t, ok)
	_, ok = a.Feed([]byte{0x03, 0x04})
	require.False(t, ok)
	frame, ok := a.Feed([]byte{0x05, 0xFF, 0xD9})
	require.True(t, ok)
	require.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0x04, 0x05, 0xFF, 0xD9}, frame)

	// packets before a frame start are dropped
	_, ok = a.Feed([]byte{0x09, 0xFF, 0xD9})
	require.False(t, ok)

	// a new header restarts the frame
	a.Feed([]byte{0xFF, 0xD8, 0xAA})
	frame, ok = a.Feed([]byte{0xFF, 0xD8, 0xBB, 0xFF, 0xD9})
	require.True(t, ok)
	require.Equal(t, []byte{0xFF, 0xD8, 0xBB, 0xFF, 0xD9}, frame)
}

func TestFilterLabel(t *testing.T) {
	dets := []dto.Detection{{Label: "waste"}, {Label: "bottle"}}
	require.Len(t, filterLabel(dets, ""), 2)
	require.Len(t, filterLabel(dets, "waste"), 1)
}
