package source

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultBufferCount matches the number of preview buffers camera drivers
// recommend keeping in flight.
const DefaultBufferCount = 4

var (
	ErrPoolExhausted      = errors.New("buffer pool exhausted")
	ErrPoolUnconfigured   = errors.New("buffer pool has no frame size")
	ErrBuffersOutstanding = errors.New("buffers still outstanding")
)

// Buffer is one reusable slot in a BufferPool. It is identified by its index
// and knows the pool it came from.
type Buffer struct {
	index int
	data  []byte
	out   bool
	pool  *BufferPool
}

func (b *Buffer) Index() int {
	return b.index
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

// NV21Size is the buffer size for a width x height NV21 image: 12 bits per
// pixel rounded up to a whole byte, plus one.
func NV21Size(width, height int) int {
	bits := width * height * 12
	return (bits+7)/8 + 1
}

// BufferPool owns a fixed set of byte buffers handed to a capture device and
// recycled once the frame they hold is no longer referenced.
type BufferPool struct {
	// Strict turns release precondition violations into panics. Otherwise
	// they are logged and ignored.
	Strict bool

	size  Size
	slots []*Buffer
	free  []int

	l sync.Mutex
}

func NewBufferPool(count int) *BufferPool {
	if count <= 0 {
		count = DefaultBufferCount
	}
	p := &BufferPool{
		slots: make([]*Buffer, count),
	}
	for i := range p.slots {
		p.slots[i] = &Buffer{index: i, pool: p}
	}
	return p
}

// Configure sizes every slot for width x height NV21 frames. Buffers are only
// reallocated when the size changes, which requires all of them to be free.
func (p *BufferPool) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	p.l.Lock()
	defer p.l.Unlock()

	sz := Size{Width: width, Height: height}
	if sz == p.size {
		return nil
	}
	if n := p.outstanding(); n > 0 {
		return fmt.Errorf("resize to %v: %w (%d)", sz, ErrBuffersOutstanding, n)
	}

	n := NV21Size(width, height)
	p.free = p.free[:0]
	for i, b := range p.slots {
		b.data = make([]byte, n)
		b.out = false
		p.free = append(p.free, i)
	}
	p.size = sz
	log.Debugf("Buffer pool reserved %d x %d bytes for %v", len(p.slots), n, sz)
	return nil
}

// Size is the frame size the pool is configured for.
func (p *BufferPool) Size() Size {
	p.l.Lock()
	defer p.l.Unlock()
	return p.size
}

// Acquire takes a free buffer.
func (p *BufferPool) Acquire() (*Buffer, error) {
	p.l.Lock()
	defer p.l.Unlock()
	if p.size == (Size{}) {
		return nil, ErrPoolUnconfigured
	}
	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	b := p.slots[i]
	b.out = true
	return b, nil
}

// Release returns b to the pool. Releasing a buffer twice or one from another
// pool is a caller bug.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil {
		p.violation("release of nil buffer")
		return
	}
	p.l.Lock()
	defer p.l.Unlock()
	if b.pool != p || b.index >= len(p.slots) || p.slots[b.index] != b {
		p.violation("release of buffer %d not owned by this pool", b.index)
		return
	}
	if !b.out {
		p.violation("double release of buffer %d", b.index)
		return
	}
	b.out = false
	p.free = append(p.free, b.index)
}

// Outstanding is the number of buffers currently handed out.
func (p *BufferPool) Outstanding() int {
	p.l.Lock()
	defer p.l.Unlock()
	return p.outstanding()
}

func (p *BufferPool) outstanding() int {
	n := 0
	for _, b := range p.slots {
		if b.out {
			n++
		}
	}
	return n
}

// Cap is the number of buffers in the pool.
func (p *BufferPool) Cap() int {
	return len(p.slots)
}

func (p *BufferPool) violation(format string, args ...interface{}) {
	if p.Strict {
		log.Panicf(format, args...)
	}
	log.Errorf(format, args...)
}
