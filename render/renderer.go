// Package render turns irregular skeleton samples into a steady stream of
// line drawings. Joint positions are low-pass filtered once per draw tick so
// the rendered skeleton moves smoothly regardless of detector cadence.
package render

import (
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"mocap/skeleton"
)

// DefaultSmoothing is the fraction of the remaining distance to the target
// covered per tick.
const DefaultSmoothing = 0.1

var ClearColor = color.RGBA{R: 230, G: 230, B: 230, A: 255}

// Rasterizer is the drawing surface. Vertices are packed xyz floats in world
// space; the rasterizer applies the transform.
type Rasterizer interface {
	Viewport(width, height int)
	Clear(c color.RGBA)
	SetTransform(mvp mgl32.Mat4)
	// DrawLines draws count vertices starting at first as independent
	// segments, two vertices each.
	DrawLines(vertices []float32, first, count int, c color.RGBA)
}

const coords = skeleton.JointCount * 3

// Renderer holds the latest target pose and the smoothed pose drawn from it.
// SetData may be called from any goroutine; the surface hooks must be called
// from a single render goroutine.
type Renderer struct {
	topo skeleton.Topology

	// Guarded by l: written by the detector side, snapshotted per tick.
	target  [coords]float32
	hasData bool
	alpha   float32
	l       sync.Mutex

	// Render goroutine only.
	smoothed [coords]float32
	snapshot [coords]float32
	vertices []float32
	mvp      mgl32.Mat4
	raster   Rasterizer
	width    int
	height   int

	ticks atomic.Uint64
	draws atomic.Uint64
}

func NewRenderer(alpha float32) *Renderer {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultSmoothing
	}
	return &Renderer{
		topo:     skeleton.Body,
		alpha:    alpha,
		vertices: make([]float32, 0, skeleton.Body.BoneCount()*2*3),
		mvp:      mgl32.Ident4(),
	}
}

// SetData sets the pose to converge toward. The shift is folded in with the
// camera-to-world convention: x is offset by the shift, y is negated and
// offset, z passes through. A nil sample clears the skeleton; the smoothed
// state is kept so the next sample continues from it.
func (r *Renderer) SetData(s *skeleton.JointSample) {
	r.l.Lock()
	defer r.l.Unlock()
	if s == nil {
		r.hasData = false
		return
	}
	for i, j := range s.Joints {
		r.target[i*3] = j.X() + s.Shift.X()
		r.target[i*3+1] = -j.Y() - s.Shift.Y()
		r.target[i*3+2] = j.Z()
	}
	r.hasData = true
}

func (r *Renderer) HasData() bool {
	r.l.Lock()
	defer r.l.Unlock()
	return r.hasData
}

// SetSmoothing changes the filter coefficient, ignoring values outside (0, 1].
func (r *Renderer) SetSmoothing(alpha float32) {
	if alpha <= 0 || alpha > 1 {
		return
	}
	r.l.Lock()
	defer r.l.Unlock()
	r.alpha = alpha
}

// OnCreate attaches the drawing surface.
func (r *Renderer) OnCreate(ras Rasterizer) {
	r.raster = ras
	ras.Clear(ClearColor)
}

// OnResize recomputes the projection for a new surface size.
func (r *Renderer) OnResize(width, height int) {
	r.width, r.height = width, height
	r.mvp = Projection(width, height)
	if r.raster != nil {
		r.raster.Viewport(width, height)
	}
}

// OnDraw advances the filter one tick and draws the skeleton.
func (r *Renderer) OnDraw() {
	r.ticks.Add(1)
	if r.raster == nil {
		return
	}
	r.raster.Clear(ClearColor)

	r.l.Lock()
	has := r.hasData
	alpha := r.alpha
	r.snapshot = r.target
	r.l.Unlock()
	if !has {
		return
	}

	for i := range r.smoothed {
		r.smoothed[i] += (r.snapshot[i] - r.smoothed[i]) * alpha
	}
	r.vertices = r.topo.Vertices(r.vertices, r.smoothed[:])

	r.raster.SetTransform(r.mvp)
	for i, span := range r.topo.Spans() {
		r.raster.DrawLines(r.vertices, span.First, span.Count, r.topo.Groups[i].Color)
	}
	r.draws.Add(1)
}

// Smoothed returns the current filtered joint positions. Render goroutine
// only.
func (r *Renderer) Smoothed() [skeleton.JointCount]mgl32.Vec3 {
	var out [skeleton.JointCount]mgl32.Vec3
	for i := range out {
		out[i] = mgl32.Vec3{r.smoothed[i*3], r.smoothed[i*3+1], r.smoothed[i*3+2]}
	}
	return out
}

// Ticks counts OnDraw calls; Draws counts those that drew bones.
func (r *Renderer) Ticks() uint64 {
	return r.ticks.Load()
}

func (r *Renderer) Draws() uint64 {
	return r.draws.Load()
}
