package core

import (
	"errors"
)

var (
	// ErrSurfaceStale is reported by acquire and present when the surface no
	// longer matches the resources created for it. It is recoverable.
	ErrSurfaceStale            = errors.New("surface is stale, resized or recreated")
	ErrAttachmentCountMismatch = errors.New("input attachment count mismatch")
	ErrNoActiveCamera          = errors.New("scene has no active camera")
	ErrDeviceTimeout           = errors.New("device wait timed out")
	ErrUnknownPass             = errors.New("unknown pass")
	ErrUnknownAttachment       = errors.New("unknown attachment")
	ErrNotInitialized          = errors.New("not initialized")
	ErrUnsupported             = errors.New("unsupported by device")
	ErrUnknown                 = errors.New("unknown")
)
