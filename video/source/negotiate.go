package source

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// aspectRatioTolerance is the largest aspect ratio difference at which a
// preview and picture size are considered the same shape.
const aspectRatioTolerance = 0.01

// SizePair is a preview size with an optional picture size of the same
// aspect ratio.
type SizePair struct {
	Preview Size
	Picture *Size
}

// ValidSizePairs pairs each preview size with the first picture size sharing
// its aspect ratio. If no preview size has a match, every preview size is
// returned without a picture size.
func ValidSizePairs(previews, pictures []Size) []SizePair {
	var pairs []SizePair
	for _, pv := range previews {
		if pv.Height == 0 {
			continue
		}
		pvRatio := float64(pv.Width) / float64(pv.Height)
		for _, pc := range pictures {
			if pc.Height == 0 {
				continue
			}
			pcRatio := float64(pc.Width) / float64(pc.Height)
			if math.Abs(pvRatio-pcRatio) < aspectRatioTolerance {
				pc := pc
				pairs = append(pairs, SizePair{Preview: pv, Picture: &pc})
				break
			}
		}
	}
	if len(pairs) == 0 {
		log.Warnf("No preview sizes have a corresponding same-aspect-ratio picture size")
		for _, pv := range previews {
			pairs = append(pairs, SizePair{Preview: pv})
		}
	}
	return pairs
}

// SelectSizePair picks the pair whose preview size is closest to the desired
// width and height, by summed absolute difference. Ties keep the first.
func SelectSizePair(previews, pictures []Size, width, height int) (SizePair, bool) {
	var selected SizePair
	found := false
	minDiff := math.MaxInt
	for _, p := range ValidSizePairs(previews, pictures) {
		diff := abs(p.Preview.Width-width) + abs(p.Preview.Height-height)
		if diff < minDiff {
			selected, minDiff, found = p, diff, true
		}
	}
	return selected, found
}

// SelectFPSRange picks the range whose bounds are jointly closest to fps.
func SelectFPSRange(ranges []FPSRange, fps float64) (FPSRange, bool) {
	scaled := int(fps * 1000)
	var selected FPSRange
	found := false
	minDiff := math.MaxInt
	for _, r := range ranges {
		diff := abs(scaled-r.Min) + abs(scaled-r.Max)
		if diff < minDiff {
			selected, minDiff, found = r, diff, true
		}
	}
	return selected, found
}

// Rotation computes the clockwise rotation of captured frames and the
// rotation to apply to a preview display, given the sensor mounting
// orientation and the current display rotation in degrees. Front cameras are
// mirrored, so their display rotation is inverted.
func Rotation(sensorOrientation, displayDegrees int, facing Facing) (frame, display int) {
	switch displayDegrees {
	case 0, 90, 180, 270:
	default:
		log.Errorf("Bad display rotation value: %d", displayDegrees)
		displayDegrees = 0
	}
	if facing == FacingFront {
		frame = (sensorOrientation + displayDegrees) % 360
		display = (360 - frame) % 360
	} else {
		frame = (sensorOrientation - displayDegrees + 360) % 360
		display = frame
	}
	return frame, display
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
