package frame

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Ring rotates through K frames. The current index only moves through
// Advance.
type Ring struct {
	frames  []*Frame
	current int
}

func NewRing(device gpu.Device, cfg Config) (*Ring, error) {
	if cfg.Count < 1 {
		return nil, fmt.Errorf("frame ring: need at least one frame, got %d", cfg.Count)
	}
	r := &Ring{frames: make([]*Frame, 0, cfg.Count)}
	for i := 0; i < cfg.Count; i++ {
		f, err := New(device, i, cfg)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.frames = append(r.frames, f)
	}
	return r, nil
}

func (r *Ring) Len() int {
	return len(r.frames)
}

func (r *Ring) Index() int {
	return r.current
}

func (r *Ring) Current() *Frame {
	return r.frames[r.current]
}

// Previous is the most recently submitted frame.
func (r *Ring) Previous() *Frame {
	return r.frames[(r.current+len(r.frames)-1)%len(r.frames)]
}

func (r *Ring) Frames() []*Frame {
	return r.frames
}

func (r *Ring) Advance() {
	r.current = (r.current + 1) % len(r.frames)
}

func (r *Ring) Destroy() {
	for _, f := range r.frames {
		f.Destroy()
	}
	r.frames = nil
	r.current = 0
}
