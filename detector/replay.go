package detector

import (
	"context"
	"errors"
	"sync"

	"mocap/skeleton"
)

// Replay is a Backend that ignores pixels and returns recorded samples in
// order, looping at the end. It stands in for a live detector when viewing a
// recorded session.
type Replay struct {
	samples []skeleton.JointSample
	next    int
	l       sync.Mutex
}

func NewReplay(samples []skeleton.JointSample) (*Replay, error) {
	if len(samples) == 0 {
		return nil, errors.New("replay needs at least one sample")
	}
	return &Replay{samples: samples}, nil
}

func (r *Replay) Detect(ctx context.Context, in *Input) <-chan Result {
	c := make(chan Result, 1)
	r.l.Lock()
	s := r.samples[r.next]
	r.next = (r.next + 1) % len(r.samples)
	r.l.Unlock()
	c <- Success([]skeleton.JointSample{s})
	return c
}

func (r *Replay) Close() error {
	return nil
}
