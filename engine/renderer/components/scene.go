package components

import (
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Scene is a flat list based scene. It owns the geometry of the meshes
// added through AddMesh and releases it in Release.
type Scene struct {
	camera *Camera
	lights []metadata.Light
	meshes []*metadata.MeshInstance
}

func NewScene() *Scene {
	return &Scene{}
}

func (s *Scene) SetCamera(c *Camera) {
	s.camera = c
}

func (s *Scene) Camera() *Camera {
	return s.camera
}

func (s *Scene) ActiveCamera() metadata.Camera {
	// a typed nil would not compare equal to nil in the renderer
	if s.camera == nil {
		return nil
	}
	return s.camera
}

func (s *Scene) AddLight(l metadata.Light) {
	s.lights = append(s.lights, l)
}

func (s *Scene) Lights() []metadata.Light {
	return s.lights
}

func (s *Scene) AddMesh(m *metadata.MeshInstance) {
	s.meshes = append(s.meshes, m)
}

func (s *Scene) Meshes() []*metadata.MeshInstance {
	return s.meshes
}

// Mesh finds a mesh instance by name.
func (s *Scene) Mesh(name string) *metadata.MeshInstance {
	for _, m := range s.meshes {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Release destroys each distinct geometry once.
func (s *Scene) Release() {
	seen := map[interface{}]bool{}
	for _, m := range s.meshes {
		if m.Geometry == nil || seen[m.Geometry] {
			continue
		}
		seen[m.Geometry] = true
		m.Geometry.Destroy()
	}
	s.meshes = nil
}
