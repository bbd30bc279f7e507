// Package pipeline hands frames from an asynchronous capture callback to a
// single processing goroutine, keeping at most one frame pending. When the
// processor falls behind, intermediate frames are dropped so it always works
// on the most recent one.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"mocap/util"
	"mocap/video/source"
)

// slowStopWarning is how long Stop waits for an in-flight Analyze call before
// logging that it is stuck.
var slowStopWarning = time.Second

// ErrNoBuffer marks a frame that does not belong to any buffer pool.
var ErrNoBuffer = errors.New("frame has no pool buffer")

// State is the run state of a Pipeline.
type State int32

const (
	Stopped State = iota
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Draining:
		return "draining"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Analyzer consumes frames on the pipeline goroutine. The frame buffer is
// released as soon as Analyze returns, so implementations that finish work
// asynchronously must copy what they need.
type Analyzer interface {
	Analyze(f *source.Frame) error
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(f *source.Frame) error

func (fn AnalyzerFunc) Analyze(f *source.Frame) error {
	return fn(f)
}

// Stats are cumulative frame counters.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Processed uint64
	Failed    uint64
	Invalid   uint64
}

// Pipeline is the producer/consumer frame hand-off.
type Pipeline struct {
	analyzer Analyzer
	pending  *util.Mailbox[*source.Frame]

	// state is written with slotLock held so Submit never races a drain.
	state    atomic.Int32
	slotLock sync.Mutex

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex
	stop      chan struct{}
	done      *util.Event

	submitted, dropped, processed, failed, invalid atomic.Uint64
}

func New(a Analyzer) *Pipeline {
	p := &Pipeline{
		analyzer: a,
	}
	p.pending = util.NewMailbox(func(f *source.Frame) {
		// Superseded before the consumer picked it up.
		p.drop(f)
	})
	return p
}

func (p *Pipeline) drop(f *source.Frame) {
	p.dropped.Add(1)
	framesDropped.Inc()
	log.Debugf("Dropping frame %d", f.Seq)
	f.Release()
}

// Submit offers a frame from the capture goroutine. It never blocks. A frame
// still pending from an earlier Submit is evicted and its buffer recycled.
// Frames submitted while the pipeline is not running are recycled at once.
func (p *Pipeline) Submit(f *source.Frame) {
	if f == nil {
		return
	}
	p.submitted.Add(1)
	framesSubmitted.Inc()

	if f.Buffer() == nil {
		p.invalid.Add(1)
		framesInvalid.Inc()
		log.WithField("seq", f.Seq).Errorf("Skipping frame: %v", ErrNoBuffer)
		return
	}

	p.slotLock.Lock()
	defer p.slotLock.Unlock()
	if State(p.state.Load()) != Running {
		p.drop(f)
		return
	}
	p.pending.Put(f)
}

// Start launches the consumer goroutine. It is a no-op if already running.
func (p *Pipeline) Start() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if State(p.state.Load()) == Running {
		return
	}

	p.stop = make(chan struct{})
	p.done = util.NewEvent()

	p.slotLock.Lock()
	p.state.Store(int32(Running))
	p.slotLock.Unlock()

	go p.run(p.stop, p.done)
	log.Debugf("Frame pipeline started")
}

// Stop signals the consumer, waits for it to exit and recycles any pending
// frame. Safe to call from any goroutine and more than once.
//
// Stop blocks for as long as an in-flight Analyze call takes; analyzers that
// can stall should enforce their own timeout.
func (p *Pipeline) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if State(p.state.Load()) != Running {
		return
	}

	p.slotLock.Lock()
	p.state.Store(int32(Draining))
	close(p.stop)
	p.slotLock.Unlock()

	start := time.Now()
	if !p.done.WaitTimeout(slowStopWarning) {
		log.Warnf("Frame pipeline still waiting on analyzer after %v", slowStopWarning)
		p.done.Wait()
	}

	p.slotLock.Lock()
	if f, ok := p.pending.Take(); ok {
		p.drop(f)
	}
	p.state.Store(int32(Stopped))
	p.slotLock.Unlock()
	log.Debugf("Frame pipeline stopped in %v", time.Since(start))
}

func (p *Pipeline) run(stop <-chan struct{}, done *util.Event) {
	defer done.Notify()
	for {
		select {
		case <-stop:
			return
		case f := <-p.pending.C():
			select {
			case <-stop:
				p.drop(f)
				return
			default:
			}
			p.process(f)
		}
	}
}

// process hands f to the analyzer. Errors and panics are logged and never
// end the loop; the buffer is always returned.
func (p *Pipeline) process(f *source.Frame) {
	defer f.Release()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			framesFailed.Inc()
			log.WithField("seq", f.Seq).Errorf("Analyzer panicked: %v", r)
		}
	}()

	start := time.Now()
	if err := p.analyzer.Analyze(f); err != nil {
		p.failed.Add(1)
		framesFailed.Inc()
		log.WithField("seq", f.Seq).Errorf("Failed to analyze frame: %v", err)
		return
	}
	analyzeSeconds.Observe(time.Since(start).Seconds())
	p.processed.Add(1)
	framesProcessed.Inc()
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Pending reports whether a frame is waiting for the consumer.
func (p *Pipeline) Pending() bool {
	return p.pending.Len() > 0
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Invalid:   p.invalid.Load(),
	}
}
