// Package detector adapts an asynchronous skeleton detection backend to the
// frame pipeline. The Adapter keeps at most one backend request outstanding;
// frames arriving while it is busy replace each other so the next request
// always uses the newest one.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"mocap/skeleton"
	"mocap/util"
	"mocap/video/source"
)

var (
	ErrStopped  = errors.New("detector stopped")
	ErrNoResult = errors.New("backend closed without a result")
)

// Input is a detection request. It owns its pixel data.
type Input struct {
	Data     []byte
	Width    int
	Height   int
	Format   source.PixelFormat
	Quadrant int
	Facing   source.Facing
	Seq      uint64
	Time     time.Time
}

// NewInput copies a frame into a request so the frame buffer can be recycled
// immediately.
func NewInput(f *source.Frame) *Input {
	return &Input{
		Data:     append([]byte(nil), f.Data...),
		Width:    f.Width,
		Height:   f.Height,
		Format:   f.Format,
		Quadrant: f.Quadrant(),
		Facing:   f.Facing,
		Seq:      f.Seq,
		Time:     f.Time,
	}
}

// Result is the outcome of one request: either Samples or Err is set.
type Result struct {
	Seq     uint64
	Time    time.Time
	Samples []skeleton.JointSample
	Err     error
	Latency time.Duration
}

func Success(samples []skeleton.JointSample) Result {
	return Result{Samples: samples}
}

func Failure(err error) Result {
	if err == nil {
		err = ErrNoResult
	}
	return Result{Err: err}
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Backend is the detection engine. Detect starts a request and returns a
// channel that yields exactly one Result. It is never called again before
// that result was received or ctx was cancelled.
type Backend interface {
	Detect(ctx context.Context, in *Input) <-chan Result
	Close() error
}

// Handler receives results in completion order on the adapter goroutine.
type Handler func(Result)

type Options struct {
	// Timeout bounds a single backend request. Zero means no limit.
	Timeout time.Duration
}

// Stats are cumulative request counters.
type Stats struct {
	Requested uint64
	Skipped   uint64
	Succeeded uint64
	Failed    uint64
	Busy      bool
}

// Adapter serializes requests to a Backend.
type Adapter struct {
	backend Backend
	handler Handler
	opts    Options

	inbox  *util.Mailbox[*Input]
	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	done   *util.Event

	stopOnce sync.Once
	stopErr  error

	requested, skipped, succeeded, failed atomic.Uint64
}

// NewAdapter starts the adapter goroutine. h may be nil.
func NewAdapter(b Backend, h Handler, opts Options) *Adapter {
	a := &Adapter{
		backend: b,
		handler: h,
		opts:    opts,
		done:    util.NewEvent(),
	}
	a.inbox = util.NewMailbox(func(in *Input) {
		a.skipped.Add(1)
		requestsSkipped.Inc()
	})
	a.ctx, a.cancel = context.WithCancel(context.Background())
	go a.loop()
	return a
}

// Analyze queues f for detection. It copies the frame and returns without
// waiting for the backend.
func (a *Adapter) Analyze(f *source.Frame) error {
	if a.ctx.Err() != nil {
		return ErrStopped
	}
	if f.Format != source.FormatNV21 {
		return fmt.Errorf("unsupported pixel format %v", f.Format)
	}
	if len(f.Data) < f.Width*f.Height*3/2 {
		return fmt.Errorf("frame %d: %d bytes for %dx%d", f.Seq, len(f.Data), f.Width, f.Height)
	}
	a.inbox.Put(NewInput(f))
	return nil
}

func (a *Adapter) loop() {
	defer a.done.Notify()
	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox.C():
			res := a.detect(in)
			if a.ctx.Err() != nil && errors.Is(res.Err, context.Canceled) {
				return
			}
			if a.handler != nil {
				a.handler(res)
			}
		}
	}
}

func (a *Adapter) detect(in *Input) Result {
	a.busy.Store(true)
	defer a.busy.Store(false)
	a.requested.Add(1)
	requestsTotal.Inc()

	ctx := a.ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	var res Result
	select {
	case r, ok := <-a.backend.Detect(ctx, in):
		if !ok {
			r = Failure(ErrNoResult)
		}
		res = r
	case <-ctx.Done():
		res = Failure(fmt.Errorf("detect frame %d: %w", in.Seq, ctx.Err()))
	}
	res.Seq = in.Seq
	res.Time = in.Time
	res.Latency = time.Since(start)
	requestSeconds.Observe(res.Latency.Seconds())

	if res.OK() {
		a.succeeded.Add(1)
		log.Debugf("Skeleton detection for frame %d: %d skeletons in %v", in.Seq, len(res.Samples), res.Latency)
	} else {
		a.failed.Add(1)
		requestsFailed.Inc()
		log.WithField("seq", in.Seq).Errorf("Skeleton detection failed: %v", res.Err)
	}
	return res
}

// Busy reports whether a backend request is outstanding.
func (a *Adapter) Busy() bool {
	return a.busy.Load()
}

func (a *Adapter) Stats() Stats {
	return Stats{
		Requested: a.requested.Load(),
		Skipped:   a.skipped.Load(),
		Succeeded: a.succeeded.Load(),
		Failed:    a.failed.Load(),
		Busy:      a.busy.Load(),
	}
}

// Stop cancels any outstanding request, waits for the adapter goroutine and
// closes the backend. Later calls return the first result.
func (a *Adapter) Stop() error {
	a.stopOnce.Do(func() {
		a.cancel()
		a.done.Wait()
		if _, ok := a.inbox.Take(); ok {
			a.skipped.Add(1)
		}
		a.stopErr = a.backend.Close()
	})
	return a.stopErr
}
