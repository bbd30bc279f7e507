package sink

import (
	"gocv.io/x/gocv"
)

// Window shows rendered frames in a local HighGUI window. It must be used
// from a single goroutine.
type Window struct {
	window  *gocv.Window
	sizeSet bool
}

func NewWindow(name string) *Window {
	return &Window{
		window: gocv.NewWindow(name),
	}
}

func (w *Window) Put(input gocv.Mat) {
	if !w.sizeSet {
		w.window.ResizeWindow(input.Cols(), input.Rows())
		w.sizeSet = true
	}
	w.window.IMShow(input)
	w.window.WaitKey(1)
}

func (w *Window) Close() {
	w.window.Close()
}
