package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Synthetic is a Device producing generated NV21 frames at a fixed rate. It
// behaves like a camera driver: when no pool buffer is free the frame is
// skipped.
type Synthetic struct {
	Options Options
	Pool    *BufferPool

	skipped atomic.Uint64
	caps    Capabilities
	stop    chan struct{}
	done    chan struct{}
	l       sync.Mutex
}

func NewSynthetic(opts Options, pool *BufferPool) *Synthetic {
	return &Synthetic{
		Options: opts,
		Pool:    pool,
	}
}

func (s *Synthetic) Start(ctx context.Context, cb FrameCallback) error {
	s.l.Lock()
	defer s.l.Unlock()
	if s.stop != nil {
		return errors.New("synthetic source already started")
	}
	w, h := s.Options.Width&^1, s.Options.Height&^1
	if err := s.Pool.Configure(w, h); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	fps := s.Options.FPS
	if fps <= 0 {
		fps = 30
	}
	s.caps = Capabilities{
		PreviewSize: Size{Width: w, Height: h},
		FPS:         FPSRange{Min: int(fps * 1000), Max: int(fps * 1000)},
		Facing:      s.Options.Facing,
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, cb, time.Duration(float64(time.Second)/fps), s.stop, s.done)
	return nil
}

func (s *Synthetic) loop(ctx context.Context, cb FrameCallback, interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	var seq uint64
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			b, err := s.Pool.Acquire()
			if err != nil {
				s.skipped.Add(1)
				log.Debugf("Synthetic source skipping frame %d: %v", seq, err)
				continue
			}
			seq++
			fill(b.Bytes(), s.caps.PreviewSize, seq)
			cb(NewFrame(b, s.caps.PreviewSize.Width, s.caps.PreviewSize.Height, 0, s.caps.Facing, seq))
		}
	}
}

// fill writes a moving luma gradient and neutral chroma.
func fill(data []byte, sz Size, seq uint64) {
	ySize := sz.Width * sz.Height
	for y := 0; y < sz.Height; y++ {
		row := data[y*sz.Width : (y+1)*sz.Width]
		for x := range row {
			row[x] = byte(x + y + int(seq))
		}
	}
	for i := ySize; i < len(data); i++ {
		data[i] = 128
	}
}

func (s *Synthetic) Capabilities() Capabilities {
	s.l.Lock()
	defer s.l.Unlock()
	return s.caps
}

// Skipped counts frames not delivered because the pool was exhausted.
func (s *Synthetic) Skipped() uint64 {
	return s.skipped.Load()
}

func (s *Synthetic) Stop() error {
	s.l.Lock()
	defer s.l.Unlock()
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
	return nil
}
