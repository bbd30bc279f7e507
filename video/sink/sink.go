package sink

import (
	"gocv.io/x/gocv"
)

// Sink is a destination for rendered images, such as an MJPEG stream or a
// window.
type Sink interface {
	// Put hands an image to the sink. The caller keeps ownership of the Mat
	// and may overwrite it once Put returns.
	Put(img gocv.Mat)

	// Close should be called to finalize the Sink.
	Close()
}
