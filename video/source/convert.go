package source

import (
	"fmt"
)

// I420ToNV21 repacks a planar I420 image (Y, then U, then V planes) into NV21
// (Y, then interleaved V/U). dst must hold at least width*height*3/2 bytes.
func I420ToNV21(dst, src []byte, width, height int) error {
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("odd frame size %dx%d", width, height)
	}
	ySize := width * height
	cSize := ySize / 4
	if len(src) < ySize+2*cSize {
		return fmt.Errorf("source too short: %d < %d", len(src), ySize+2*cSize)
	}
	if len(dst) < ySize+2*cSize {
		return fmt.Errorf("destination too short: %d < %d", len(dst), ySize+2*cSize)
	}
	copy(dst, src[:ySize])
	u := src[ySize : ySize+cSize]
	v := src[ySize+cSize : ySize+2*cSize]
	vu := dst[ySize:]
	for i := 0; i < cSize; i++ {
		vu[2*i] = v[i]
		vu[2*i+1] = u[i]
	}
	return nil
}
