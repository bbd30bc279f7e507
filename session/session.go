// Package session wires a capture device through the frame pipeline and the
// detector into the skeleton renderer, and owns their lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"mocap/detector"
	"mocap/render"
	"mocap/skeleton"
	"mocap/video/pipeline"
	"mocap/video/source"
)

var ErrReleased = errors.New("session released")

// EmptyPolicy decides what the display shows when a detection succeeds but
// finds nobody.
type EmptyPolicy int32

const (
	// Freeze keeps the last pose on screen.
	Freeze EmptyPolicy = iota
	// Clear blanks the skeleton.
	Clear
)

func (p EmptyPolicy) String() string {
	if p == Clear {
		return "clear"
	}
	return "freeze"
}

func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch s {
	case "", "freeze":
		return Freeze, nil
	case "clear":
		return Clear, nil
	}
	return Freeze, fmt.Errorf("unknown empty policy %q", s)
}

// SampleListener is told about every skeleton shown on screen.
type SampleListener interface {
	SampleDetected(seq uint64, at time.Time, s *skeleton.JointSample)
}

// PresenceListener is told how many skeletons every successful detection found.
type PresenceListener interface {
	SkeletonsDetected(count int, at time.Time)
}

type Options struct {
	Detector    detector.Options
	EmptyPolicy EmptyPolicy
}

// Status is a point in time snapshot for the status endpoint.
type Status struct {
	Running       bool
	Pipeline      string
	Frames        pipeline.Stats
	Detector      detector.Stats
	Capture       source.Capabilities
	BuffersOut    int
	HasData       bool
	EmptyPolicy   string
	LastSeq       uint64
	UptimeSec     int64
	RenderTicks   uint64
	RenderDraws   uint64
	DeviceSkipped uint64 `json:",omitempty"`
}

type skipCounter interface {
	Skipped() uint64
}

// Session is the orchestrator. Listeners must be set before Start.
type Session struct {
	Device    source.Device
	Pool      *source.BufferPool
	Renderer  *render.Renderer
	Listeners []SampleListener
	Presence  []PresenceListener

	adapter  *detector.Adapter
	pipeline *pipeline.Pipeline
	policy   atomic.Int32
	lastSeq  atomic.Uint64

	running  bool
	released bool
	started  time.Time
	l        sync.Mutex
}

// New builds a stopped session. The detector adapter starts immediately but
// receives no frames until Start.
func New(dev source.Device, pool *source.BufferPool, backend detector.Backend, r *render.Renderer, opts Options) *Session {
	s := &Session{
		Device:   dev,
		Pool:     pool,
		Renderer: r,
	}
	s.policy.Store(int32(opts.EmptyPolicy))
	s.adapter = detector.NewAdapter(backend, s.handleResult, opts.Detector)
	s.pipeline = pipeline.New(s.adapter)
	return s
}

// Start runs the pipeline and opens the device. A device that cannot be
// opened leaves the session stopped and the error wraps
// source.ErrCaptureUnavailable.
func (s *Session) Start(ctx context.Context) error {
	s.l.Lock()
	defer s.l.Unlock()
	if s.released {
		return ErrReleased
	}
	if s.running {
		return nil
	}
	s.pipeline.Start()
	if err := s.Device.Start(ctx, s.pipeline.Submit); err != nil {
		s.pipeline.Stop()
		return fmt.Errorf("start session: %w", err)
	}
	s.running = true
	s.started = time.Now()
	caps := s.Device.Capabilities()
	log.Infof("Session started: %v at %d-%d mfps, rotation %d, facing %v",
		caps.PreviewSize, caps.FPS.Min, caps.FPS.Max, caps.Rotation, caps.Facing)
	return nil
}

// Stop closes the device and drains the pipeline. No frame buffer is out
// once it returns. A stopped session can be started again, which is also
// how a capture resolution change is applied.
func (s *Session) Stop() error {
	s.l.Lock()
	defer s.l.Unlock()
	return s.stop()
}

func (s *Session) stop() error {
	if !s.running {
		return nil
	}
	err := s.Device.Stop()
	s.pipeline.Stop()
	s.running = false
	if n := s.Pool.Outstanding(); n != 0 {
		log.Errorf("%d frame buffers still out after stop", n)
	}
	log.Infof("Session stopped after %v", time.Since(s.started).Round(time.Second))
	return err
}

// Release stops the session, shuts the detector down and clears the
// display. The session cannot be restarted.
func (s *Session) Release() error {
	s.l.Lock()
	defer s.l.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	err := s.stop()
	if derr := s.adapter.Stop(); derr != nil {
		err = errors.Join(err, fmt.Errorf("close detector: %w", derr))
	}
	s.Renderer.SetData(nil)
	return err
}

func (s *Session) SetEmptyPolicy(p EmptyPolicy) {
	s.policy.Store(int32(p))
}

func (s *Session) EmptyPolicy() EmptyPolicy {
	return EmptyPolicy(s.policy.Load())
}

// handleResult runs on the detector goroutine.
func (s *Session) handleResult(res detector.Result) {
	if !res.OK() {
		return
	}
	if len(res.Samples) == 0 {
		if s.EmptyPolicy() == Clear {
			s.Renderer.SetData(nil)
		}
	} else {
		// Only the last skeleton of a result is drawn.
		sample := &res.Samples[len(res.Samples)-1]
		s.Renderer.SetData(sample)
		s.lastSeq.Store(res.Seq)
		for _, l := range s.Listeners {
			l.SampleDetected(res.Seq, res.Time, sample)
		}
	}
	for _, p := range s.Presence {
		p.SkeletonsDetected(len(res.Samples), res.Time)
	}
}

func (s *Session) Status() Status {
	s.l.Lock()
	running, started := s.running, s.started
	s.l.Unlock()

	st := Status{
		Running:     running,
		Pipeline:    s.pipeline.State().String(),
		Frames:      s.pipeline.Stats(),
		Detector:    s.adapter.Stats(),
		BuffersOut:  s.Pool.Outstanding(),
		HasData:     s.Renderer.HasData(),
		EmptyPolicy: s.EmptyPolicy().String(),
		LastSeq:     s.lastSeq.Load(),
		RenderTicks: s.Renderer.Ticks(),
		RenderDraws: s.Renderer.Draws(),
	}
	if running {
		st.Capture = s.Device.Capabilities()
		st.UptimeSec = int64(time.Since(started).Seconds())
	}
	if sc, ok := s.Device.(skipCounter); ok {
		st.DeviceSkipped = sc.Skipped()
	}
	return st
}
