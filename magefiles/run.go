//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the windowed testbed.
func (Run) Testbed() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run testbed...")
	_, err := executeCmd("go", withArgs("run", ".", "-settings", "settings.toml"), withStream())
	return err
}

// Renders a few frames without a window and writes the tone mapped image
// to the capture directory.
func (Run) Headless() error {
	_, err := executeCmd("go", withArgs("run", ".", "-headless", "-frames", "3", "-capture", "tonemap.ldr"), withStream())
	return err
}
