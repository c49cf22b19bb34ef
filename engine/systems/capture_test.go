package systems

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestCaptureWriterWritesBMP(t *testing.T) {
	jobs, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	defer jobs.Shutdown()

	dir := filepath.Join(t.TempDir(), "captures")
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.SetRGBA(1, 1, color.RGBA{R: 255, A: 255})

	written := make(chan error, 1)
	path, err := NewCaptureWriter(dir, jobs).Write("composition.hdr", img, func(p string, err error) {
		written <- err
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "composition_hdr_"))
	assert.Equal(t, ".bmp", filepath.Ext(path))

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("capture was not written")
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := bmp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
	r, _, _, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestCaptureWriterAfterShutdown(t *testing.T) {
	jobs, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, jobs.Shutdown())

	_, err = NewCaptureWriter(t.TempDir(), jobs).Write("present.color", image.NewRGBA(image.Rect(0, 0, 1, 1)), nil)
	assert.ErrorIs(t, err, ErrJobSystemClosed)
}

func TestJobSystemReportsFailures(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	jobs, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	failed := make(chan error, 1)
	require.NoError(t, jobs.Submit(JobTask{
		Name:       "boom",
		Run:        func() error { return os.ErrPermission },
		OnComplete: func() { t.Error("completed a failing job") },
		OnFailure:  func(err error) { failed <- err },
	}))
	require.NoError(t, jobs.Shutdown())
	assert.ErrorIs(t, <-failed, os.ErrPermission)
	assert.NoError(t, jobs.Shutdown())
}
