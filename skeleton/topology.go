package skeleton

import (
	"fmt"
	"image/color"
)

// Bone is a line segment between two joints.
type Bone struct {
	A, B int
}

// Group is a contiguous run of bones drawn with one color.
type Group struct {
	Name  string
	Color color.RGBA
	Bones []Bone
}

// Topology is an ordered list of bone groups. Vertex buffers built from it
// hold the groups back to back in this order.
type Topology struct {
	Groups []Group
}

// Body is the fixed topology for the 24 joint layout: spine, then the two
// limb sides.
var Body = Topology{
	Groups: []Group{
		{
			Name:  "spine",
			Color: color.RGBA{R: 255, A: 255},
			Bones: []Bone{{0, 3}, {3, 6}, {6, 9}, {9, 12}, {12, 15}},
		},
		{
			Name:  "left",
			Color: color.RGBA{G: 255, A: 255},
			Bones: []Bone{
				{0, 2}, {2, 5}, {5, 8}, {8, 11},
				{9, 14}, {14, 17}, {17, 19}, {19, 21}, {21, 23},
			},
		},
		{
			Name:  "right",
			Color: color.RGBA{B: 255, A: 255},
			Bones: []Bone{
				{0, 1}, {1, 4}, {4, 7}, {7, 10},
				{9, 13}, {13, 16}, {16, 18}, {18, 20}, {20, 22},
			},
		},
	},
}

// Bones returns every bone in draw order.
func (t Topology) Bones() []Bone {
	var bs []Bone
	for _, g := range t.Groups {
		bs = append(bs, g.Bones...)
	}
	return bs
}

// BoneCount is the total number of bones across all groups.
func (t Topology) BoneCount() int {
	n := 0
	for _, g := range t.Groups {
		n += len(g.Bones)
	}
	return n
}

// Span is the range of vertices belonging to one group.
type Span struct {
	First, Count int
}

// Spans returns, per group, the first vertex and vertex count (two per bone).
func (t Topology) Spans() []Span {
	spans := make([]Span, len(t.Groups))
	first := 0
	for i, g := range t.Groups {
		spans[i] = Span{First: first, Count: len(g.Bones) * 2}
		first += spans[i].Count
	}
	return spans
}

// Validate checks that every bone references a joint below n.
func (t Topology) Validate(n int) error {
	for _, g := range t.Groups {
		for _, b := range g.Bones {
			if b.A < 0 || b.A >= n || b.B < 0 || b.B >= n {
				return fmt.Errorf("bone %v in group %q outside joint range %d", b, g.Name, n)
			}
		}
	}
	return nil
}

// Vertices writes the segment endpoints for positions into dst as packed xyz
// floats, growing dst as needed. positions holds 3 floats per joint.
func (t Topology) Vertices(dst []float32, positions []float32) []float32 {
	dst = dst[:0]
	for _, g := range t.Groups {
		for _, b := range g.Bones {
			dst = append(dst, positions[b.A*3:b.A*3+3]...)
			dst = append(dst, positions[b.B*3:b.B*3+3]...)
		}
	}
	return dst
}
