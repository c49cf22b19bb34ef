//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
	"golang.org/x/exp/slices"
)

// cmdOptions configures one external tool invocation (go, glslc).
type cmdOptions struct {
	args   []string
	env    map[string]string
	stream bool
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = append(o.args, args...)
	}
}

// withEnv sets key on top of the current environment. glfw and the Vulkan
// loader are cgo packages, so builds and race runs force CGO_ENABLED.
func withEnv(key, value string) cmdOption {
	return func(o *cmdOptions) {
		if o.env == nil {
			o.env = map[string]string{}
		}
		o.env[key] = value
	}
}

// withStream echoes the tool output while it runs instead of only on failure.
func withStream() cmdOption {
	return func(o *cmdOptions) {
		o.stream = true
	}
}

// executeCmd runs command and returns its combined output. A tool missing
// from PATH is reported before anything runs.
func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	path, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("%s is required for this target: %w", command, err)
	}

	cmd := exec.Command(path, opts.args...)
	cmd.Env = os.Environ()
	var env []string
	for k, v := range opts.env {
		env = append(env, k+"="+v)
	}
	slices.Sort(env)
	cmd.Env = append(cmd.Env, env...)
	fmt.Printf("==> %s %s %s\n", strings.Join(env, " "), command, strings.Join(opts.args, " "))

	var out bytes.Buffer
	if mg.Verbose() || opts.stream {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s failed: %w", command, err)
		}
		return out.String(), nil
	}

	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s output:\n%s\n", command, out.String())
		return "", fmt.Errorf("%s failed: %w", command, err)
	}
	return out.String(), nil
}
