package metadata

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type std140Writer struct {
	buf []byte
	off int
}

func (w *std140Writer) f32(v float32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], math.Float32bits(v))
	w.off += 4
}

func (w *std140Writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *std140Writer) vec4(v mgl32.Vec4) {
	for _, f := range v {
		w.f32(f)
	}
}

// mat4 is column major, matching mgl32's storage.
func (w *std140Writer) mat4(m mgl32.Mat4) {
	for _, f := range m {
		w.f32(f)
	}
}

// align pads to the next multiple of n bytes from the start of the record.
func (w *std140Writer) align(n int) {
	if r := w.off % n; r != 0 {
		w.off += n - r
	}
}
