//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every GLSL stage under assets/shaders into SPIR-V next to it.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and then the testbed binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/lumen", "."), withEnv("CGO_ENABLED", "1"), withStream())
	return err
}

func buildShaders() error {
	var sources []string
	for _, ext := range []string{"vert", "frag", "comp"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, "*."+ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		fmt.Printf("No shader sources in %s\n", shaderDir)
		return nil
	}
	for _, src := range sources {
		// geometry.frag -> geometry.frag.spv
		out := src + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return fmt.Errorf("compiling %s: %w", strings.TrimPrefix(src, shaderDir+"/"), err)
		}
	}
	return nil
}
