package capture

import (
	"context"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"mocap/video/source"
)

// fakeCamera snaps requested properties to the nearest supported mode on
// read, the way V4L2 drivers do.
type fakeCamera struct {
	modes []source.Size
	rates []float64

	reqW, reqH, reqFPS float64
}

func (c *fakeCamera) Set(prop gocv.VideoCaptureProperties, v float64) {
	switch prop {
	case gocv.VideoCaptureFrameWidth:
		c.reqW = v
	case gocv.VideoCaptureFrameHeight:
		c.reqH = v
	case gocv.VideoCaptureFPS:
		c.reqFPS = v
	}
}

func (c *fakeCamera) mode() source.Size {
	best := c.modes[0]
	bestDiff := math.MaxFloat64
	for _, m := range c.modes {
		d := math.Abs(float64(m.Width)-c.reqW) + math.Abs(float64(m.Height)-c.reqH)
		if d < bestDiff {
			best, bestDiff = m, d
		}
	}
	return best
}

func (c *fakeCamera) Get(prop gocv.VideoCaptureProperties) float64 {
	switch prop {
	case gocv.VideoCaptureFrameWidth:
		return float64(c.mode().Width)
	case gocv.VideoCaptureFrameHeight:
		return float64(c.mode().Height)
	case gocv.VideoCaptureFPS:
		best := c.rates[0]
		for _, r := range c.rates {
			if math.Abs(r-c.reqFPS) < math.Abs(best-c.reqFPS) {
				best = r
			}
		}
		return best
	}
	return 0
}

func TestSupportedSizesDeduplicates(t *testing.T) {
	cam := &fakeCamera{modes: []source.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}}, rates: []float64{30}}
	got := supportedSizes(cam, StandardSizes)
	assert.Equal(t, []source.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}}, got)
}

func TestNegotiatePicksClosestMode(t *testing.T) {
	cam := &fakeCamera{
		modes: []source.Size{{Width: 320, Height: 240}, {Width: 640, Height: 480}, {Width: 1280, Height: 720}},
		rates: []float64{15, 30},
	}
	size, fps, err := negotiate(cam, source.Options{Width: 700, Height: 500, FPS: 25}, StandardSizes, StandardFPS)
	require.NoError(t, err)
	assert.Equal(t, source.Size{Width: 640, Height: 480}, size)
	assert.Equal(t, source.FPSRange{Min: 30000, Max: 30000}, fps)

	// The selection is left applied on the device.
	assert.Equal(t, float64(640), cam.Get(gocv.VideoCaptureFrameWidth))
	assert.Equal(t, float64(30), cam.Get(gocv.VideoCaptureFPS))
}

func TestNegotiateWithoutFPSLeavesRate(t *testing.T) {
	cam := &fakeCamera{modes: []source.Size{{Width: 640, Height: 480}}, rates: []float64{30}}
	_, fps, err := negotiate(cam, source.Options{Width: 640, Height: 480}, StandardSizes, StandardFPS)
	require.NoError(t, err)
	assert.Zero(t, fps)
}

func TestNegotiateNoModes(t *testing.T) {
	cam := &fakeCamera{modes: []source.Size{{Width: 0, Height: 0}}, rates: []float64{30}}
	_, _, err := negotiate(cam, source.Options{Width: 640, Height: 480}, StandardSizes, StandardFPS)
	assert.Error(t, err)
}

func writeClip(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.avi")
	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	for i := 0; i < frames; i++ {
		img.SetTo(gocv.NewScalar(float64(i*40), 128, 64, 0))
		gocv.Rectangle(&img, image.Rect(i*4, 4, i*4+8, 12), color.RGBA{255, 255, 255, 0}, -1)
		require.NoError(t, w.Write(img))
	}
	require.NoError(t, w.Close())
	return path
}

func TestFileEndsDelivery(t *testing.T) {
	path := writeClip(t, 5)
	pool := source.NewBufferPool(source.DefaultBufferCount)
	pool.Strict = true
	vc := NewVideoCapture(source.Options{URI: path}, pool)

	var frames atomic.Int32
	cb := func(f *source.Frame) {
		frames.Add(1)
		f.Release()
	}
	var perRun []int32
	for run := 0; run < 2; run++ {
		frames.Store(0)
		require.NoError(t, vc.Start(context.Background(), cb))
		select {
		case <-vc.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("delivery did not end at end of file")
		}
		assert.Equal(t, source.Size{Width: 64, Height: 48}, vc.Capabilities().PreviewSize)
		perRun = append(perRun, frames.Load())
	}
	assert.Positive(t, perRun[0])
	assert.Equal(t, perRun[0], perRun[1], "a file that ended can be started again")
	assert.NoError(t, vc.Stop())
	assert.Zero(t, pool.Outstanding())
}
