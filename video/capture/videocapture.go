// Package capture implements source.Device on top of OpenCV video capture.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"mocap/video/source"
)

const (
	// A camera or stream failing this many reads in a row is treated as gone.
	maxReadFailures   = 200
	readRetryInterval = 5 * time.Millisecond
)

// VideoCapture reads frames from a camera index or a file/stream URI and
// delivers them as NV21 frames in pool buffers.
type VideoCapture struct {
	Options source.Options
	Pool    *source.BufferPool

	// SensorOrientation and DisplayDegrees feed the frame rotation. Most
	// desktop cameras are mounted at 0.
	SensorOrientation int
	DisplayDegrees    int

	// Sizes and Rates are probed on cameras to find the mode closest to the
	// requested one. Empty means StandardSizes and StandardFPS.
	Sizes []source.Size
	Rates []float64

	// OnNegotiated, if set, is called once per Start with the values the
	// device settled on.
	OnNegotiated func(source.Capabilities)

	skipped atomic.Uint64
	caps    source.Capabilities
	stop    chan struct{}
	done    chan struct{}
	l       sync.Mutex
}

func NewVideoCapture(opts source.Options, pool *source.BufferPool) *VideoCapture {
	return &VideoCapture{
		Options: opts,
		Pool:    pool,
	}
}

func (v *VideoCapture) open() (*gocv.VideoCapture, error) {
	if v.Options.URI != "" {
		return gocv.VideoCaptureFile(v.Options.URI)
	}
	return gocv.VideoCaptureDevice(v.Options.DeviceID)
}

func (v *VideoCapture) Start(ctx context.Context, cb source.FrameCallback) error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.stop != nil {
		select {
		case <-v.done:
			// The previous stream ended on its own.
			v.stop, v.done = nil, nil
		default:
			return errors.New("video capture already started")
		}
	}

	cap, err := v.open()
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrCaptureUnavailable, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("%w: device %d / %q did not open", source.ErrCaptureUnavailable, v.Options.DeviceID, v.Options.URI)
	}

	// Files and streams play at their native size and rate.
	if v.Options.URI == "" && v.Options.Width > 0 && v.Options.Height > 0 {
		sizes, rates := v.Sizes, v.Rates
		if len(sizes) == 0 {
			sizes = StandardSizes
		}
		if len(rates) == 0 {
			rates = StandardFPS
		}
		if _, _, err := negotiate(cap, v.Options, sizes, rates); err != nil {
			cap.Close()
			return fmt.Errorf("%w: %v", source.ErrCaptureUnavailable, err)
		}
	} else if v.Options.URI == "" && v.Options.FPS > 0 {
		cap.Set(gocv.VideoCaptureFPS, v.Options.FPS)
	}
	if v.Options.AutoFocus {
		cap.Set(gocv.VideoCaptureAutoFocus, 1)
	}

	// Drivers round to what they support; read back the effective values.
	// NV21 needs even dimensions.
	w := int(cap.Get(gocv.VideoCaptureFrameWidth)) &^ 1
	h := int(cap.Get(gocv.VideoCaptureFrameHeight)) &^ 1
	fps := cap.Get(gocv.VideoCaptureFPS)
	if w == 0 || h == 0 {
		cap.Close()
		return fmt.Errorf("%w: device reported size %dx%d", source.ErrCaptureUnavailable, w, h)
	}
	if fps <= 0 {
		fps = v.Options.FPS
	}

	if err := v.Pool.Configure(w, h); err != nil {
		cap.Close()
		return fmt.Errorf("%w: %v", source.ErrCaptureUnavailable, err)
	}

	rotation, display := source.Rotation(v.SensorOrientation, v.DisplayDegrees, v.Options.Facing)
	v.caps = source.Capabilities{
		PreviewSize:     source.Size{Width: w, Height: h},
		FPS:             source.FPSRange{Min: int(fps * 1000), Max: int(fps * 1000)},
		Facing:          v.Options.Facing,
		Rotation:        rotation,
		DisplayRotation: display,
		AutoFocus:       v.Options.AutoFocus && cap.Get(gocv.VideoCaptureAutoFocus) > 0,
	}
	log.Infof("Capture negotiated %v @ %.1f fps, rotation %d", v.caps.PreviewSize, fps, rotation)
	if v.OnNegotiated != nil {
		v.OnNegotiated(v.caps)
	}

	v.stop = make(chan struct{})
	v.done = make(chan struct{})
	go v.loop(ctx, cap, cb, v.caps, v.stop, v.done)
	return nil
}

func (v *VideoCapture) loop(ctx context.Context, cap *gocv.VideoCapture, cb source.FrameCallback, caps source.Capabilities, stop, done chan struct{}) {
	defer close(done)
	defer cap.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	sized := gocv.NewMat()
	defer sized.Close()
	yuv := gocv.NewMat()
	defer yuv.Close()

	sz := image.Point{X: caps.PreviewSize.Width, Y: caps.PreviewSize.Height}
	var seq uint64
	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if ok := cap.Read(&bgr); !ok || bgr.Empty() {
			failures++
			if v.Options.URI != "" && !strings.Contains(v.Options.URI, "://") {
				log.Infof("Reached end of %v after %d frames", v.Options.URI, seq)
				return
			}
			if failures >= maxReadFailures {
				log.Errorf("Capture device stopped delivering frames after %d frames", seq)
				return
			}
			time.Sleep(readRetryInterval)
			continue
		}
		failures = 0

		in := bgr
		if bgr.Cols() != sz.X || bgr.Rows() != sz.Y {
			gocv.Resize(bgr, &sized, sz, 0, 0, gocv.InterpolationLinear)
			in = sized
		}
		gocv.CvtColor(in, &yuv, gocv.ColorBGRToYUVI420)

		b, err := v.Pool.Acquire()
		if err != nil {
			// Every buffer is still referenced downstream; the frame is lost,
			// as it would be with a camera driver out of callback buffers.
			v.skipped.Add(1)
			continue
		}
		if err := source.I420ToNV21(b.Bytes(), yuv.ToBytes(), sz.X, sz.Y); err != nil {
			log.Errorf("Failed to convert frame: %v", err)
			v.Pool.Release(b)
			continue
		}
		seq++
		cb(source.NewFrame(b, sz.X, sz.Y, caps.Rotation, caps.Facing, seq))
	}
}

func (v *VideoCapture) Capabilities() source.Capabilities {
	v.l.Lock()
	defer v.l.Unlock()
	return v.caps
}

// Skipped counts frames read while no pool buffer was free.
func (v *VideoCapture) Skipped() uint64 {
	return v.skipped.Load()
}

// Done is closed when frame delivery ends, either through Stop or because the
// file or device ran out of frames. It is nil before Start.
func (v *VideoCapture) Done() <-chan struct{} {
	v.l.Lock()
	defer v.l.Unlock()
	return v.done
}

func (v *VideoCapture) Stop() error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.stop == nil {
		return nil
	}
	close(v.stop)
	<-v.done
	v.stop, v.done = nil, nil
	return nil
}
