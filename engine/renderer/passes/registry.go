package passes

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/lumen/engine/core"
)

// Pass keys known to Bootstrap. A pass created from the registry takes its
// key as name.
const (
	KeyShadow         = "shadow"
	KeyGeometry       = "geometry"
	KeyPrecomposition = "precomposition"
	KeyComposition    = "composition"
	KeyBloom          = "bloom"
	KeyAntiAliasing   = "aa"
	KeyTonemap        = "tonemap"
	KeyRayTracing     = "raytracing"
	KeyPresent        = "present"
)

type Factory func(res *Resources) (Kind, error)

// Registry maps pass keys to factories. It is filled once at startup and
// read afterwards.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(key string, f Factory) error {
	if key == "" || f == nil {
		return fmt.Errorf("registry: empty key or nil factory")
	}
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("registry: pass %q registered twice", key)
	}
	r.factories[key] = f
	return nil
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Create builds a pass for key. The pass is not set up yet.
func (r *Registry) Create(key string, res *Resources) (*Pass, error) {
	f, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("registry: %q: %w", key, core.ErrUnknownPass)
	}
	kind, err := f(res)
	if err != nil {
		return nil, fmt.Errorf("registry: create %q: %w", key, err)
	}
	return New(key, kind, res), nil
}

// Bootstrap registers every built-in pass kind.
func Bootstrap(r *Registry) error {
	builtins := []struct {
		key string
		f   Factory
	}{
		{KeyShadow, NewShadow},
		{KeyGeometry, NewGBuffer},
		{KeyPrecomposition, NewPrecomposition},
		{KeyComposition, NewComposition},
		{KeyBloom, NewBloom},
		{KeyAntiAliasing, NewAntiAliasing},
		{KeyTonemap, NewTonemap},
		{KeyRayTracing, NewRayTracing},
		{KeyPresent, NewPresent},
	}
	for _, b := range builtins {
		if err := r.Register(b.key, b.f); err != nil {
			return err
		}
	}
	return nil
}
