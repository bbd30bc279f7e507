package sink

import (
	"image"
	"image/color"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"gocv.io/x/gocv"

	"mocap/render"
)

// LineWidth is the bone stroke width in pixels.
const LineWidth = 5

// Canvas is a software render.Rasterizer drawing into an OpenCV Mat. Present
// stamps the status label and hands the image to every sink.
type Canvas struct {
	Sinks []Sink
	// Label, if set, supplies text drawn in the top left corner.
	Label func() string

	img    gocv.Mat
	mvp    mgl32.Mat4
	width  int
	height int

	l sync.Mutex
}

func NewCanvas(sinks ...Sink) *Canvas {
	return &Canvas{
		Sinks: sinks,
		img:   gocv.NewMat(),
		mvp:   mgl32.Ident4(),
	}
}

func (c *Canvas) Viewport(width, height int) {
	c.l.Lock()
	defer c.l.Unlock()
	if width == c.width && height == c.height && !c.img.Empty() {
		return
	}
	c.img.Close()
	c.img = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.width, c.height = width, height
}

func (c *Canvas) Clear(col color.RGBA) {
	c.l.Lock()
	defer c.l.Unlock()
	if c.img.Empty() {
		return
	}
	c.img.SetTo(gocv.NewScalar(float64(col.B), float64(col.G), float64(col.R), 0))
}

func (c *Canvas) SetTransform(mvp mgl32.Mat4) {
	c.l.Lock()
	defer c.l.Unlock()
	c.mvp = mvp
}

func (c *Canvas) DrawLines(vertices []float32, first, count int, col color.RGBA) {
	c.l.Lock()
	defer c.l.Unlock()
	if c.img.Empty() {
		return
	}
	for i := first; i+1 < first+count; i += 2 {
		a, okA := c.project(vertices, i)
		b, okB := c.project(vertices, i+1)
		if !okA || !okB {
			continue
		}
		gocv.Line(&c.img, a, b, col, LineWidth)
	}
}

func (c *Canvas) project(vertices []float32, i int) (image.Point, bool) {
	if (i+1)*3 > len(vertices) {
		return image.Point{}, false
	}
	v := mgl32.Vec3{vertices[i*3], vertices[i*3+1], vertices[i*3+2]}
	x, y, ok := render.ToViewport(c.mvp, v, c.width, c.height)
	return image.Point{X: int(x), Y: int(y)}, ok
}

func (c *Canvas) Present() {
	c.l.Lock()
	defer c.l.Unlock()
	if c.img.Empty() {
		return
	}
	if c.Label != nil {
		DrawLabel(&c.img, c.Label())
	}
	for _, s := range c.Sinks {
		s.Put(c.img)
	}
}

func (c *Canvas) Close() {
	c.l.Lock()
	defer c.l.Unlock()
	for _, s := range c.Sinks {
		s.Close()
	}
	c.img.Close()
}
