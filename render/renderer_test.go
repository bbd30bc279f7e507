package render

import (
	"context"
	"image/color"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocap/skeleton"
)

type drawCall struct {
	First, Count int
	Color        color.RGBA
}

type fakeRaster struct {
	l          sync.Mutex
	clears     int
	calls      []drawCall
	transform  mgl32.Mat4
	w, h       int
	presents   int
	lastVertex []float32
}

func (f *fakeRaster) Viewport(w, h int) { f.w, f.h = w, h }

func (f *fakeRaster) Clear(color.RGBA) {
	f.l.Lock()
	defer f.l.Unlock()
	f.clears++
}

func (f *fakeRaster) SetTransform(m mgl32.Mat4) { f.transform = m }

func (f *fakeRaster) DrawLines(v []float32, first, count int, c color.RGBA) {
	f.l.Lock()
	defer f.l.Unlock()
	f.calls = append(f.calls, drawCall{first, count, c})
	f.lastVertex = append(f.lastVertex[:0], v...)
}

func (f *fakeRaster) Present() {
	f.l.Lock()
	defer f.l.Unlock()
	f.presents++
}

func (f *fakeRaster) reset() {
	f.l.Lock()
	defer f.l.Unlock()
	f.calls = nil
	f.clears = 0
}

func uniformSample(p mgl32.Vec3) *skeleton.JointSample {
	s := &skeleton.JointSample{}
	for i := range s.Joints {
		s.Joints[i] = p
	}
	return s
}

func newTestRenderer() (*Renderer, *fakeRaster) {
	r := NewRenderer(DefaultSmoothing)
	f := &fakeRaster{}
	r.OnCreate(f)
	r.OnResize(640, 480)
	return r, f
}

func TestNoDataDrawsNothing(t *testing.T) {
	r, f := newTestRenderer()
	for i := 0; i < 10; i++ {
		r.OnDraw()
	}
	assert.False(t, r.HasData())
	assert.Empty(t, f.calls)
	assert.Equal(t, 11, f.clears, "one clear on create plus one per tick")
	assert.Equal(t, uint64(10), r.Ticks())
	assert.Equal(t, uint64(0), r.Draws())
}

func TestDrawsThreeGroups(t *testing.T) {
	r, f := newTestRenderer()
	r.SetData(uniformSample(mgl32.Vec3{1, 1, 1}))
	r.OnDraw()

	want := []drawCall{
		{0, 10, color.RGBA{R: 255, A: 255}},
		{10, 18, color.RGBA{G: 255, A: 255}},
		{28, 18, color.RGBA{B: 255, A: 255}},
	}
	if diff := cmp.Diff(want, f.calls); diff != "" {
		t.Errorf("draw calls mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, f.lastVertex, 46*3)
	assert.Equal(t, Projection(640, 480), f.transform)
	assert.Equal(t, 640, f.w)
	assert.Equal(t, 480, f.h)
}

func TestSmoothingClosedForm(t *testing.T) {
	r, _ := newTestRenderer()
	p := mgl32.Vec3{2, -1, 0.5}
	r.SetData(uniformSample(p))

	// Target after the coordinate convention is applied.
	want := mgl32.Vec3{p.X(), -p.Y(), p.Z()}
	for k := 1; k <= 80; k++ {
		r.OnDraw()
		decay := float32(math.Pow(1-DefaultSmoothing, float64(k)))
		got := r.Smoothed()[7]
		for c := 0; c < 3; c++ {
			// S0 is the origin: smoothed_k = P - P*(1-a)^k.
			assert.InDelta(t, want[c]-want[c]*decay, got[c], 1e-4, "tick %d coord %d", k, c)
		}
	}
}

func TestSmoothingConverges(t *testing.T) {
	r, _ := newTestRenderer()
	p := mgl32.Vec3{3, 3, 3}
	r.SetData(uniformSample(p))

	initial := mgl32.Vec3{3, -3, 3}.Len()
	// 0.9^66 < 1e-3.
	for k := 0; k < 66; k++ {
		r.OnDraw()
	}
	dist := r.Smoothed()[0].Sub(mgl32.Vec3{3, -3, 3}).Len()
	assert.Less(t, dist, initial*1e-3)
}

func TestSetDataCoordinateConvention(t *testing.T) {
	r, _ := newTestRenderer()
	r.SetSmoothing(1)
	s := uniformSample(mgl32.Vec3{1, 2, 3})
	s.Shift = mgl32.Vec3{10, 20, 30}
	r.SetData(s)
	r.OnDraw()
	assert.Equal(t, mgl32.Vec3{11, -22, 3}, r.Smoothed()[0])
}

func TestClearKeepsSmoothedState(t *testing.T) {
	r, f := newTestRenderer()
	r.SetSmoothing(1)
	r.SetData(uniformSample(mgl32.Vec3{1, 0, 0}))
	r.OnDraw()
	require.True(t, r.HasData())

	r.SetData(nil)
	f.reset()
	r.OnDraw()
	assert.False(t, r.HasData())
	assert.Empty(t, f.calls)
	assert.Equal(t, 1, f.clears)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, r.Smoothed()[3])
}

func TestSetSmoothingIgnoresInvalid(t *testing.T) {
	r := NewRenderer(0)
	assert.Equal(t, float32(DefaultSmoothing), r.alpha)
	r.SetSmoothing(2)
	r.SetSmoothing(-1)
	assert.Equal(t, float32(DefaultSmoothing), r.alpha)
	r.SetSmoothing(0.5)
	assert.Equal(t, float32(0.5), r.alpha)
}

func TestConcurrentSetDataNeverTears(t *testing.T) {
	r, _ := newTestRenderer()
	r.SetSmoothing(1)

	stop := make(chan bool)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v := float32(0)
		for {
			select {
			case <-stop:
				return
			default:
			}
			v++
			r.SetData(uniformSample(mgl32.Vec3{v, 0, 0}))
		}
	}()

	for i := 0; i < 500; i++ {
		r.OnDraw()
		if !r.HasData() {
			continue
		}
		// With alpha 1 every joint equals the snapshot, so all x match.
		sm := r.Smoothed()
		for _, j := range sm {
			require.Equal(t, sm[0].X(), j.X())
		}
	}
	close(stop)
	wg.Wait()
}

func TestProjectionCentersOrigin(t *testing.T) {
	mvp := Projection(640, 480)
	x, y, ok := ToViewport(mvp, mgl32.Vec3{0, 0, 0}, 640, 480)
	require.True(t, ok)
	assert.InDelta(t, 320, x, 1e-3)
	assert.InDelta(t, 240, y, 1e-3)

	// +y in world is up on screen.
	_, y2, ok := ToViewport(mvp, mgl32.Vec3{0, 1, 0}, 640, 480)
	require.True(t, ok)
	assert.Less(t, y2, y)

	_, _, ok = ToViewport(mvp, mgl32.Vec3{0, 0, 10}, 640, 480)
	assert.False(t, ok, "points behind the eye are not drawn")
}

func TestLoopPresents(t *testing.T) {
	r := NewRenderer(DefaultSmoothing)
	f := &fakeRaster{}
	l := &Loop{Renderer: r, Surface: f, Width: 100, Height: 100, FPS: 200}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		l.Run(ctx)
		done <- true
	}()
	require.Eventually(t, func() bool {
		f.l.Lock()
		defer f.l.Unlock()
		return f.presents >= 3
	}, 5*time.Second, time.Millisecond)
	cancel()
	<-done
	assert.GreaterOrEqual(t, r.Ticks(), uint64(3))
}

func TestProjectionAppliesColumnVectorOrder(t *testing.T) {
	mvp := Projection(640, 480)

	// Nearer points spread further from the center.
	far, _, ok := ToViewport(mvp, mgl32.Vec3{1, 0, 0}, 640, 480)
	require.True(t, ok)
	near, _, ok := ToViewport(mvp, mgl32.Vec3{1, 0, 2}, 640, 480)
	require.True(t, ok)
	assert.Greater(t, far, float32(320))
	assert.Greater(t, near, far)

	// The eye sits at z 4.5; anything at or behind it is not drawn.
	_, _, ok = ToViewport(mvp, mgl32.Vec3{0, 0, 4.5}, 640, 480)
	assert.False(t, ok)
	_, _, ok = ToViewport(mvp, mgl32.Vec3{0, 0, 6}, 640, 480)
	assert.False(t, ok)

	clip := mvp.Mul4x1(mgl32.Vec4{1, 0, 2, 1})
	assert.InDelta(t, 2.5, clip.W(), 1e-4)
}
