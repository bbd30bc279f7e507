package record

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"mocap/skeleton"
)

// SampleWriter is the part of Store the Recorder needs.
type SampleWriter interface {
	AddSamples(sessionID uint, samples []Sample) error
}

type RecorderOptions struct {
	// BatchSize flushes once this many samples are buffered.
	BatchSize int
	// FlushInterval flushes a partial batch after this long.
	FlushInterval time.Duration
}

// Recorder buffers samples for a session and writes them in batches on its
// own goroutine. SampleDetected never blocks; if the writer falls behind,
// samples are dropped.
type Recorder struct {
	sessionID uint
	w         SampleWriter
	opts      RecorderOptions

	input     chan Sample
	close     chan chan bool
	closeOnce sync.Once
	dropped   atomic.Uint64
	written   atomic.Uint64
}

func NewRecorder(w SampleWriter, sessionID uint, o RecorderOptions) *Recorder {
	if o.BatchSize <= 0 {
		o.BatchSize = 30
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	r := &Recorder{
		sessionID: sessionID,
		w:         w,
		opts:      o,
		input:     make(chan Sample, o.BatchSize*4),
		close:     make(chan chan bool),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	var batch []Sample
	t := time.NewTicker(r.opts.FlushInterval)
	defer t.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.w.AddSamples(r.sessionID, batch); err != nil {
			log.Errorf("Failed to write %d samples for session %d: %v", len(batch), r.sessionID, err)
			r.dropped.Add(uint64(len(batch)))
		} else {
			r.written.Add(uint64(len(batch)))
		}
		batch = nil
	}

	for {
		select {
		case s := <-r.input:
			batch = append(batch, s)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-t.C:
			flush()
		case c := <-r.close:
			// Drain anything already queued.
			for {
				select {
				case s := <-r.input:
					batch = append(batch, s)
					continue
				default:
				}
				break
			}
			flush()
			c <- true
			return
		}
	}
}

// SampleDetected queues a sample for writing.
func (r *Recorder) SampleDetected(seq uint64, at time.Time, s *skeleton.JointSample) {
	rec, err := EncodeSample(seq, at, s)
	if err != nil {
		log.Errorf("Failed to encode sample %d: %v", seq, err)
		return
	}
	select {
	case r.input <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Written and Dropped are cumulative sample counts.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close flushes pending samples and stops the writer goroutine. Later calls
// return immediately.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		c := make(chan bool)
		r.close <- c
		<-c
	})
}
