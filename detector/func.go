package detector

import (
	"context"
	"fmt"

	"mocap/skeleton"
)

// Func is an in-process Backend. Each Detect runs the function on its own
// goroutine.
type Func func(ctx context.Context, in *Input) ([]skeleton.JointSample, error)

func (fn Func) Detect(ctx context.Context, in *Input) <-chan Result {
	c := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c <- Failure(fmt.Errorf("detector panic: %v", r))
			}
		}()
		samples, err := fn(ctx, in)
		if err != nil {
			c <- Failure(err)
			return
		}
		c <- Success(samples)
	}()
	return c
}

func (fn Func) Close() error {
	return nil
}
