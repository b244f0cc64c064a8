// Package bufpool provides a bounded pool of fixed-size byte buffers for
// socket reads and response writes.
//
// ============================================================================
// Design
// ============================================================================
//
// The pool keeps at most MaxPoolSize buffers alive. Idle buffers live in a
// buffered channel sized to MaxPoolSize, so a release can never block and a
// buffer is never held twice. Creation is gated by a CAS loop on the created
// counter: concurrent callers cannot both pass the check and together exceed
// the cap.
//
// When every pooled buffer is lent out, Acquire returns a temporary buffer of
// the same size instead of waiting. Temporaries carry pooled=false and are
// dropped on Release. Connection goroutines therefore never stall on pool
// capacity; transient overflow becomes extra garbage instead of backpressure.
//
// Invariant: Idle + Lent <= Created <= MaxPoolSize.
//
// Thread Safety:
// All methods are safe for concurrent use.
package bufpool

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrInvalidConfig is returned by New for unusable sizing parameters.
	ErrInvalidConfig = errors.New("bufpool: invalid configuration")
)

// Config sizes a Pool.
type Config struct {
	// BufferSize is the fixed capacity of every pooled buffer in bytes.
	BufferSize int

	// MinPoolSize buffers are allocated up front.
	MinPoolSize int

	// MaxPoolSize caps the number of pooled buffers ever created.
	MaxPoolSize int
}

// Buffer is a byte buffer on loan from a Pool.
//
// B always has length equal to the buffer's capacity when acquired; callers
// reslice as needed. A Buffer must not be used after it has been released.
type Buffer struct {
	B []byte

	pooled   bool
	released atomic.Bool
}

// Bytes returns the underlying slice.
func (b *Buffer) Bytes() []byte {
	return b.B
}

// Pooled reports whether the buffer belongs to the pool (as opposed to a
// one-off temporary).
func (b *Buffer) Pooled() bool {
	return b.pooled
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Created     int64 // pooled buffers ever created
	Idle        int64 // pooled buffers waiting in the idle set
	Lent        int64 // pooled buffers currently on loan
	Temporaries int64 // one-off buffers handed out since start
}

// Pool is a bounded set of reusable fixed-size buffers.
type Pool struct {
	bufferSize int
	maxSize    int64

	idle chan *Buffer

	created     atomic.Int64
	lent        atomic.Int64
	temporaries atomic.Int64
}

// New validates cfg and returns a pool pre-populated with MinPoolSize
// buffers.
//
// Returns ErrInvalidConfig (wrapped with details) when BufferSize or
// MaxPoolSize is not positive, or MinPoolSize is outside [0, MaxPoolSize].
func New(cfg Config) (*Pool, error) {
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("%w: buffer_size must be positive, got %d", ErrInvalidConfig, cfg.BufferSize)
	}
	if cfg.MaxPoolSize <= 0 {
		return nil, fmt.Errorf("%w: max_pool_size must be positive, got %d", ErrInvalidConfig, cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize < 0 || cfg.MinPoolSize > cfg.MaxPoolSize {
		return nil, fmt.Errorf("%w: min_pool_size must be between 0 and max_pool_size (%d), got %d",
			ErrInvalidConfig, cfg.MaxPoolSize, cfg.MinPoolSize)
	}

	p := &Pool{
		bufferSize: cfg.BufferSize,
		maxSize:    int64(cfg.MaxPoolSize),
		idle:       make(chan *Buffer, cfg.MaxPoolSize),
	}

	for i := 0; i < cfg.MinPoolSize; i++ {
		buf := p.newPooled()
		buf.released.Store(true)
		p.created.Add(1)
		p.idle <- buf
	}

	return p, nil
}

// BufferSize returns the fixed capacity of pooled buffers.
func (p *Pool) BufferSize() int {
	return p.bufferSize
}

// Acquire lends a buffer of BufferSize bytes. It never blocks.
//
// Order of preference:
//  1. an idle pooled buffer
//  2. a newly created pooled buffer, if fewer than MaxPoolSize exist
//  3. a temporary buffer that Release will drop
func (p *Pool) Acquire() *Buffer {
	select {
	case buf := <-p.idle:
		buf.released.Store(false)
		p.lent.Add(1)
		return buf
	default:
	}

	for {
		n := p.created.Load()
		if n >= p.maxSize {
			break
		}
		if p.created.CompareAndSwap(n, n+1) {
			p.lent.Add(1)
			return p.newPooled()
		}
	}

	p.temporaries.Add(1)
	return &Buffer{B: make([]byte, p.bufferSize)}
}

// AcquireSize lends a buffer of at least n bytes, resliced to exactly n.
// Requests larger than BufferSize get a one-off buffer sized to n.
func (p *Pool) AcquireSize(n int) *Buffer {
	if n <= p.bufferSize {
		buf := p.Acquire()
		buf.B = buf.B[:n]
		return buf
	}
	p.temporaries.Add(1)
	return &Buffer{B: make([]byte, n)}
}

// Release returns a buffer to the pool.
//
// The contents are zeroed before the buffer becomes idle. Temporaries,
// buffers of the wrong capacity, nil and already released buffers are
// ignored.
func (p *Pool) Release(buf *Buffer) {
	if buf == nil || !buf.pooled || cap(buf.B) != p.bufferSize {
		return
	}
	if !buf.released.CompareAndSwap(false, true) {
		return
	}

	buf.B = buf.B[:cap(buf.B)]
	clear(buf.B)
	p.lent.Add(-1)

	select {
	case p.idle <- buf:
	default:
		// Unreachable while the idle channel is sized to MaxPoolSize; drop
		// rather than block if that ever changes.
	}
}

// Stats returns current occupancy counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Created:     p.created.Load(),
		Idle:        int64(len(p.idle)),
		Lent:        p.lent.Load(),
		Temporaries: p.temporaries.Load(),
	}
}

func (p *Pool) newPooled() *Buffer {
	return &Buffer{B: make([]byte, p.bufferSize), pooled: true}
}
