package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < avgCount; i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 0.001)
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 125ms frames: the 9th update crosses the one second mark
	for i := 0; i < 9; i++ {
		m.Update(0.125)
	}
	fps, _ := m.Frame()
	assert.Equal(t, 8.0, fps)
}

func TestSetLogLevelIgnoresUnknown(t *testing.T) {
	SetLogLevel("debug")
	assert.Equal(t, "debug", Logger().GetLevel().String())
	SetLogLevel("loud")
	assert.Equal(t, "debug", Logger().GetLevel().String())
	SetLogLevel("info")
}
