package plates

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/service/eventstore"

	"github.com/stretchr/testify/require"
)

func TestClipScan_AssignsIdsInClipOrder(t *testing.T) {
	scan := newClipScan(DefaultOptions(), 1)

	plateA := dto.Box{X1: 100, Y1: 100, X2: 160, Y2: 120}
	plateB := dto.Box{X1: 600, Y1: 400, X2: 660, Y2: 420}

	id, ok := scan.accept(plateA, 0.8, 0)
	require.True(t, ok)
	require.Equal(t, 1, id)

	// same plate drifting a few pixels
	_, ok = scan.accept(dto.Box{X1: 104, Y1: 101, X2: 164, Y2: 121}, 0.9, 100*time.Millisecond)
	require.False(t, ok)

	id, ok = scan.accept(plateB, 0.7, 200*time.Millisecond)
	require.True(t, ok)
	require.Equal(t, 2, id)
}

func TestClipScan_ResumeSkipsRecordedPlates(t *testing.T) {
	// plates 1 and 2 were appended before the scan was interrupted
	scan := newClipScan(DefaultOptions(), 3)

	boxes := []dto.Box{
		{X1: 0, Y1: 0, X2: 50, Y2: 20},
		{X1: 300, Y1: 0, X2: 350, Y2: 20},
		{X1: 600, Y1: 0, X2: 650, Y2: 20},
	}
	var got []int
	for i, b := range boxes {
		if id, ok := scan.accept(b, 0.9, time.Duration(i)*time.Second); ok {
			got = append(got, id)
		}
	}
	require.Equal(t, []int{3}, got)
}

func TestClipScan_ExpiredTrackIsNewPlate(t *testing.T) {
	opts := DefaultOptions()
	opts.TrackMaxAge = time.Second
	scan := newClipScan(opts, 1)

	box := dto.Box{X1: 100, Y1: 100, X2: 160, Y2: 120}
	_, ok := scan.accept(box, 0.8, 0)
	require.True(t, ok)

	id, ok := scan.accept(box, 0.8, 3*time.Second)
	require.True(t, ok)
	require.Equal(t, 2, id)
}

func TestCropBox(t *testing.T) {
	b := dto.Box{X1: 10, Y1: 10, X2: 110, Y2: 30}
	require.Equal(t, dto.Box{X1: 0, Y1: 1, X2: 145, Y2: 39}, cropBox(b, 0.35, 0.45, 640, 480))
	require.Equal(t, dto.Box{X1: 0, Y1: 1, X2: 120, Y2: 39}, cropBox(b, 0.35, 0.45, 120, 480))
}

func TestPlateFileName(t *testing.T) {
	require.Equal(t, "plate_001.jpg", PlateFileName(1))
	require.Equal(t, "plate_120.jpg", PlateFileName(120))
}

func TestScanOnce_SkipsEventsThatAreNotReady(t *testing.T) {
	store := eventstore.New(t.TempDir())
	pass := NewPass(store, nil, DefaultOptions(), logger.NewNop())

	// no clip yet
	noClip := store.EventDir("cam_01", "e1")
	require.NoError(t, store.Create(noClip, &dto.EventRecord{EventID: "e1", CameraID: "cam_01"}))

	// clip still recording
	recording := store.EventDir("cam_01", "e2")
	require.NoError(t, store.Create(recording, &dto.EventRecord{EventID: "e2", CameraID: "cam_01"}))
	require.NoError(t, os.WriteFile(filepath.Join(recording, dto.DefaultVideoPath), []byte("partial"), 0644))
	require.NoError(t, eventstore.MarkRecording(recording))

	// already processed
	processed := store.EventDir("cam_01", "e3")
	require.NoError(t, store.Create(processed, &dto.EventRecord{EventID: "e3", CameraID: "cam_01", PlateProcessed: true}))
	require.NoError(t, os.WriteFile(filepath.Join(processed, dto.DefaultVideoPath), []byte("clip"), 0644))

	// directory without a record
	require.NoError(t, os.MkdirAll(store.EventDir("cam_01", "e4"), 0755))

	done, err := pass.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, done)

	for _, dir := range []string{noClip, recording} {
		rec, err := store.Read(dir)
		require.NoError(t, err)
		require.False(t, rec.PlateProcessed)
	}
}

func TestScanOnce_LogsMissingClipOnce(t *testing.T) {
	store := eventstore.New(t.TempDir())
	var buf bytes.Buffer
	pass := NewPass(store, nil, DefaultOptions(), logger.NewWithWriter(&buf))

	noClip := store.EventDir("cam_01", "e1")
	require.NoError(t, store.Create(noClip, &dto.EventRecord{EventID: "e1", CameraID: "cam_01"}))

	recording := store.EventDir("cam_01", "e2")
	require.NoError(t, store.Create(recording, &dto.EventRecord{EventID: "e2", CameraID: "cam_01"}))
	require.NoError(t, eventstore.MarkRecording(recording))

	for i := 0; i < 2; i++ {
		done, err := pass.ScanOnce(context.Background())
		require.NoError(t, err)
		require.Equal(t, 0, done)
	}

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "is missing"))
	require.Contains(t, out, noClip)
	require.Contains(t, out, "still recording")
}

func TestRun_NonPositiveIntervalUsesDefault(t *testing.T) {
	opts := DefaultOptions()
	opts.Interval = 0
	pass := NewPass(eventstore.New(t.TempDir()), nil, opts, logger.NewNop())
	require.Equal(t, DefaultOptions().Interval, pass.opts.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pass.Run(ctx)
}
