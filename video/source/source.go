package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCaptureUnavailable is returned when a capture device cannot be opened or
// configured. It is fatal to the capture session.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Facing is the direction a capture device points.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(s) {
	case "", "back":
		return FacingBack, nil
	case "front":
		return FacingFront, nil
	}
	return FacingBack, fmt.Errorf("invalid facing %q", s)
}

// PixelFormat tags the layout of Frame.Data.
type PixelFormat int

// FormatNV21 is planar luma followed by interleaved V/U chroma at quarter
// resolution. The value matches the Android ImageFormat constant detectors
// expect.
const FormatNV21 PixelFormat = 17

func (p PixelFormat) String() string {
	if p == FormatNV21 {
		return "nv21"
	}
	return fmt.Sprintf("format(%d)", int(p))
}

// Frame is one captured image. Data is owned by a pool buffer and must not be
// modified after the frame is handed off; Release returns the buffer.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Format   PixelFormat
	Rotation int // Degrees clockwise, one of 0, 90, 180, 270.
	Facing   Facing
	Time     time.Time
	Seq      uint64

	buf *Buffer
}

// NewFrame wraps a pool buffer. The frame's Data aliases the buffer.
func NewFrame(b *Buffer, width, height, rotation int, facing Facing, seq uint64) *Frame {
	f := &Frame{
		Width:    width,
		Height:   height,
		Format:   FormatNV21,
		Rotation: rotation,
		Facing:   facing,
		Time:     time.Now(),
		Seq:      seq,
		buf:      b,
	}
	if b != nil {
		f.Data = b.Bytes()
	}
	return f
}

// Quadrant is the rotation expressed in quarter turns (0-3).
func (f *Frame) Quadrant() int {
	return ((f.Rotation/90)%4 + 4) % 4
}

// Buffer is the pool slot backing this frame, nil if it was not pool backed
// or has been released.
func (f *Frame) Buffer() *Buffer {
	return f.buf
}

// Release returns the frame's buffer to its pool. Calling Release again on
// the same frame is a no-op.
func (f *Frame) Release() {
	b := f.buf
	if b == nil {
		return
	}
	f.buf = nil
	b.pool.Release(b)
}

// Size is a pixel resolution.
type Size struct {
	Width, Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// FPSRange is a frame rate range scaled by 1000, as reported by camera
// drivers.
type FPSRange struct {
	Min, Max int
}

// Options are the requested capture parameters.
type Options struct {
	// URI opens a file or stream instead of a device when non-empty.
	URI       string
	DeviceID  int
	Width     int
	Height    int
	FPS       float64
	Facing    Facing
	AutoFocus bool
}

// Capabilities are the values a device actually settled on.
type Capabilities struct {
	PreviewSize     Size
	FPS             FPSRange
	Facing          Facing
	Rotation        int
	DisplayRotation int
	AutoFocus       bool
}

// FrameCallback receives frames on the device's delivery goroutine. It must
// not block; ownership of the frame passes to the callee.
type FrameCallback func(*Frame)

// Device is a capture source delivering frames asynchronously.
type Device interface {
	// Start opens the device and begins delivering frames to cb. Failures to
	// open or configure wrap ErrCaptureUnavailable.
	Start(ctx context.Context, cb FrameCallback) error

	// Capabilities returns the negotiated parameters, valid after Start.
	Capabilities() Capabilities

	// Stop halts delivery. No callback runs after Stop returns.
	Stop() error
}
