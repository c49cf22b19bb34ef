package passes

import (
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// AttachmentDesc declares one output of a pass.
type AttachmentDesc struct {
	Name   string
	Format gpu.Format
	// Scale is relative to the pass extent; zero means full size.
	Scale float32
	Load  gpu.LoadOp
	Clear gpu.ClearValue
	// Surface attachments render into the presentable images and are not
	// owned by the pass.
	Surface bool
}

// Attachment is a declared output together with its images, one per frame
// slot. Fallback attachments hold a single image shared by every slot.
type Attachment struct {
	Desc   AttachmentDesc
	Pass   string
	Images []gpu.Image
}

// ID is the name CaptureTexture and the logs use: "<pass>.<attachment>".
func (a *Attachment) ID() string {
	return a.Pass + "." + a.Desc.Name
}

func (a *Attachment) Image(slot int) gpu.Image {
	if len(a.Images) == 0 {
		return nil
	}
	return a.Images[slot%len(a.Images)]
}

func (a *Attachment) destroy() {
	if a.Desc.Surface {
		a.Images = nil
		return
	}
	for _, img := range a.Images {
		if img != nil {
			img.Destroy()
		}
	}
	a.Images = nil
}
