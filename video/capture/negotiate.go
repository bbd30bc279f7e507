package capture

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"mocap/video/source"
)

// StandardSizes are the modes probed on a camera that cannot list its own.
var StandardSizes = []source.Size{
	{Width: 320, Height: 240},
	{Width: 640, Height: 480},
	{Width: 800, Height: 600},
	{Width: 1024, Height: 768},
	{Width: 1280, Height: 720},
	{Width: 1280, Height: 960},
	{Width: 1920, Height: 1080},
}

// StandardFPS are the frame rates probed on a camera.
var StandardFPS = []float64{15, 24, 30, 60}

// prober is the property interface of gocv.VideoCapture.
type prober interface {
	Set(prop gocv.VideoCaptureProperties, param float64)
	Get(prop gocv.VideoCaptureProperties) float64
}

func readSize(p prober) source.Size {
	return source.Size{
		Width:  int(p.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(p.Get(gocv.VideoCaptureFrameHeight)),
	}
}

// supportedSizes asks the driver for each candidate and keeps the distinct
// sizes it settles on.
func supportedSizes(p prober, candidates []source.Size) []source.Size {
	seen := make(map[source.Size]bool)
	var out []source.Size
	for _, c := range candidates {
		p.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		p.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
		got := readSize(p)
		if got.Width <= 0 || got.Height <= 0 || seen[got] {
			continue
		}
		seen[got] = true
		out = append(out, got)
	}
	return out
}

// supportedFPS asks the driver for each candidate rate. Drivers report fixed
// rates, so every range has Min == Max.
func supportedFPS(p prober, candidates []float64) []source.FPSRange {
	seen := make(map[int]bool)
	var out []source.FPSRange
	for _, c := range candidates {
		p.Set(gocv.VideoCaptureFPS, c)
		got := int(math.Round(p.Get(gocv.VideoCaptureFPS) * 1000))
		if got <= 0 || seen[got] {
			continue
		}
		seen[got] = true
		out = append(out, source.FPSRange{Min: got, Max: got})
	}
	return out
}

// negotiate picks the supported size and rate closest to the request and
// applies them. A webcam captures stills in its preview modes, so the probed
// sizes serve as both preview and picture sizes.
func negotiate(p prober, opts source.Options, sizes []source.Size, rates []float64) (source.Size, source.FPSRange, error) {
	supported := supportedSizes(p, sizes)
	pair, ok := source.SelectSizePair(supported, supported, opts.Width, opts.Height)
	if !ok {
		return source.Size{}, source.FPSRange{}, fmt.Errorf("no usable capture size among %d candidates", len(sizes))
	}
	p.Set(gocv.VideoCaptureFrameWidth, float64(pair.Preview.Width))
	p.Set(gocv.VideoCaptureFrameHeight, float64(pair.Preview.Height))
	log.Debugf("Capture sizes %v, selected %v for %dx%d", supported, pair.Preview, opts.Width, opts.Height)

	var fps source.FPSRange
	if opts.FPS > 0 {
		if r, ok := source.SelectFPSRange(supportedFPS(p, rates), opts.FPS); ok {
			fps = r
			p.Set(gocv.VideoCaptureFPS, float64(r.Max)/1000)
		}
	}
	return pair.Preview, fps, nil
}
