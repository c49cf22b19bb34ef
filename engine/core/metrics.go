package core

const avgCount = 30

// Metrics keeps a rolling frame-time average and a once-per-second FPS
// counter. It is owned by the render loop and is not safe for concurrent use.
type Metrics struct {
	frameAvgCounter    int
	msTimes            [avgCount]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update records one frame that took frameElapsed seconds.
func (m *Metrics) Update(frameElapsed float64) {
	frameMS := frameElapsed * 1000.0
	m.msTimes[m.frameAvgCounter] = frameMS
	if m.frameAvgCounter == avgCount-1 {
		m.msAvg = 0
		for i := 0; i < avgCount; i++ {
			m.msAvg += m.msTimes[i]
		}
		m.msAvg /= float64(avgCount)
	}
	m.frameAvgCounter++
	m.frameAvgCounter %= avgCount

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

// Frame returns FPS and the average frame time in milliseconds.
func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
