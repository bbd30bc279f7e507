package render

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Presenter is implemented by rasterizers that publish a finished frame.
type Presenter interface {
	Present()
}

// Loop drives a Renderer at a fixed rate, standing in for a display's vsync.
type Loop struct {
	Renderer *Renderer
	Surface  Rasterizer
	Width    int
	Height   int
	FPS      int
}

// Run creates the surface and draws until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	fps := l.FPS
	if fps <= 0 {
		fps = 60
	}
	l.Renderer.OnCreate(l.Surface)
	l.Renderer.OnResize(l.Width, l.Height)
	presenter, _ := l.Surface.(Presenter)

	log.Infof("Render loop at %d fps on %dx%d surface", fps, l.Width, l.Height)
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Renderer.OnDraw()
			renderTicks.Inc()
			if presenter != nil {
				presenter.Present()
			}
		}
	}
}
