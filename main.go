/*
Lumen testbed. Opens a window and renders the test scene through the
deferred pass graph, or renders a fixed number of frames headless.
*/
package main

import (
	"context"
	"flag"
	"strings"

	"github.com/xlab/closer"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/testbed"
)

var (
	settingsPath = flag.String("settings", "settings.toml", "Renderer settings file")
	assetsDir    = flag.String("assets", "assets", "Asset directory to index and watch")
	headless     = flag.Bool("headless", false, "Render without a window")
	frames       = flag.Int("frames", 0, "Frames to render headless, 0 runs until interrupted")
	captures     = flag.String("capture", "", "Comma separated attachment ids written on exit, e.g. tonemap.ldr")
	debug        = flag.Bool("debug", false, "Load Vulkan validation layers")
)

func main() {
	flag.Parse()

	tb := testbed.NewTestGame(&engine.ApplicationConfig{
		Name:           "Lumen Testbed",
		SettingsPath:   *settingsPath,
		AssetsDir:      *assetsDir,
		Headless:       *headless,
		HeadlessFrames: *frames,
		CaptureOnExit:  splitList(*captures),
		Debug:          *debug,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	// closer runs this on SIGINT/SIGTERM; the window has to be torn down
	// on the main thread so only wait for the loop here
	closer.Bind(func() {
		cancel()
		<-stopped
	})

	err := run(ctx, tb)
	close(stopped)
	if err != nil {
		core.LogError("testbed: %s", err)
		closer.Exit(1)
	}
	closer.Close()
}

func run(ctx context.Context, tb *testbed.TestGame) error {
	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}
	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
