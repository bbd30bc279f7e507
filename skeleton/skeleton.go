// Package skeleton defines the joint layout produced by the motion capture
// detector and the bone topology used to draw it.
package skeleton

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// JointCount is the number of joints in every sample. Joint indices are fixed
// and shared with Body.
const JointCount = 24

var ErrShortSample = errors.New("skeleton: not enough joint data")

// JointSample is one detector output for a single frame.
type JointSample struct {
	Joints [JointCount]mgl32.Vec3
	// Shift is the translation of the whole skeleton relative to the camera.
	Shift mgl32.Vec3
	// Quaternions holds per-joint orientation, may be empty when the detector
	// was not asked for rotations.
	Quaternions []mgl32.Quat
}

// FromDetection builds a sample from the list-of-lists layout detectors report:
// joints as [x, y, z], shift as [x, y, z] and quaternions as [w, x, y, z].
// A missing or empty shift is treated as zero.
func FromDetection(joints [][]float32, shift []float32, quats [][]float32) (JointSample, error) {
	var s JointSample
	if len(joints) < JointCount {
		return s, fmt.Errorf("%w: %d joints, want %d", ErrShortSample, len(joints), JointCount)
	}
	for i := 0; i < JointCount; i++ {
		j := joints[i]
		if len(j) < 3 {
			return s, fmt.Errorf("%w: joint %d has %d coordinates", ErrShortSample, i, len(j))
		}
		s.Joints[i] = mgl32.Vec3{j[0], j[1], j[2]}
	}
	if len(shift) >= 3 {
		s.Shift = mgl32.Vec3{shift[0], shift[1], shift[2]}
	} else if len(shift) != 0 {
		return s, fmt.Errorf("%w: shift has %d coordinates", ErrShortSample, len(shift))
	}
	for i, q := range quats {
		if len(q) < 4 {
			return s, fmt.Errorf("%w: quaternion %d has %d components", ErrShortSample, i, len(q))
		}
		s.Quaternions = append(s.Quaternions, mgl32.Quat{W: q[0], V: mgl32.Vec3{q[1], q[2], q[3]}}.Normalize())
	}
	return s, nil
}

// Lists is the inverse of FromDetection.
func (s *JointSample) Lists() (joints [][]float32, shift []float32, quats [][]float32) {
	joints = make([][]float32, JointCount)
	for i, j := range s.Joints {
		joints[i] = []float32{j.X(), j.Y(), j.Z()}
	}
	shift = []float32{s.Shift.X(), s.Shift.Y(), s.Shift.Z()}
	for _, q := range s.Quaternions {
		quats = append(quats, []float32{q.W, q.V.X(), q.V.Y(), q.V.Z()})
	}
	return joints, shift, quats
}
