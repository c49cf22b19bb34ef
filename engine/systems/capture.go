package systems

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/lumen/engine/core"
)

// CaptureWriter stores captured attachments as BMP files. Encoding and
// disk access happen on the job pool, never on the render goroutine.
type CaptureWriter struct {
	dir  string
	jobs *JobSystem
}

func NewCaptureWriter(dir string, jobs *JobSystem) *CaptureWriter {
	return &CaptureWriter{dir: dir, jobs: jobs}
}

// Write queues img for writing and returns the file it will end up in.
// done, when set, is called from the worker once the file is written or
// the write failed.
func (c *CaptureWriter) Write(id string, img *image.RGBA, done func(path string, err error)) (string, error) {
	name := fmt.Sprintf("%s_%s.bmp", strings.ReplaceAll(id, ".", "_"), uuid.NewString())
	path := filepath.Join(c.dir, name)

	err := c.jobs.Submit(JobTask{
		Name: "capture " + id,
		Run: func() error {
			return writeBMP(path, img)
		},
		OnComplete: func() {
			core.LogInfo("capture %s written to %s", id, path)
			if done != nil {
				done(path, nil)
			}
		},
		OnFailure: func(err error) {
			if done != nil {
				done(path, err)
			}
		},
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeBMP(path string, img *image.RGBA) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
