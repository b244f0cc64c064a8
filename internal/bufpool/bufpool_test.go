package bufpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"Valid", Config{BufferSize: 64, MinPoolSize: 2, MaxPoolSize: 4}, true},
		{"MinEqualsMax", Config{BufferSize: 64, MinPoolSize: 4, MaxPoolSize: 4}, true},
		{"ZeroMin", Config{BufferSize: 64, MinPoolSize: 0, MaxPoolSize: 1}, true},
		{"ZeroBufferSize", Config{BufferSize: 0, MinPoolSize: 0, MaxPoolSize: 1}, false},
		{"ZeroMax", Config{BufferSize: 64, MinPoolSize: 0, MaxPoolSize: 0}, false},
		{"NegativeMin", Config{BufferSize: 64, MinPoolSize: -1, MaxPoolSize: 1}, false},
		{"MinAboveMax", Config{BufferSize: 64, MinPoolSize: 5, MaxPoolSize: 4}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.cfg)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, int64(tc.cfg.MinPoolSize), p.Stats().Created)
				assert.Equal(t, int64(tc.cfg.MinPoolSize), p.Stats().Idle)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestAcquireRelease(t *testing.T) {
	p, err := New(Config{BufferSize: 16, MinPoolSize: 1, MaxPoolSize: 2})
	require.NoError(t, err)

	a := p.Acquire()
	assert.True(t, a.Pooled())
	assert.Len(t, a.Bytes(), 16)

	b := p.Acquire()
	assert.True(t, b.Pooled())
	assert.Equal(t, int64(2), p.Stats().Created)

	// Cap reached: temporary, never blocks.
	c := p.Acquire()
	assert.False(t, c.Pooled())
	assert.Len(t, c.Bytes(), 16)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Lent)
	assert.Equal(t, int64(0), stats.Idle)
	assert.Equal(t, int64(1), stats.Temporaries)

	copy(a.B, "dirty")
	p.Release(a)
	p.Release(b)
	p.Release(c)

	stats = p.Stats()
	assert.Equal(t, int64(0), stats.Lent)
	assert.Equal(t, int64(2), stats.Idle)
	assert.Equal(t, int64(2), stats.Created)

	again := p.Acquire()
	assert.True(t, again.Pooled())
	assert.Equal(t, make([]byte, 16), again.Bytes(), "released buffer must be cleared")
}

func TestReleaseEdgeCases(t *testing.T) {
	p, err := New(Config{BufferSize: 8, MinPoolSize: 0, MaxPoolSize: 2})
	require.NoError(t, err)

	p.Release(nil)

	buf := p.Acquire()
	p.Release(buf)
	p.Release(buf)
	assert.Equal(t, int64(1), p.Stats().Idle, "double release must not duplicate a buffer")
	assert.Equal(t, int64(0), p.Stats().Lent)

	// Buffer from another pool with a different size is dropped.
	other, err := New(Config{BufferSize: 32, MinPoolSize: 0, MaxPoolSize: 1})
	require.NoError(t, err)
	p.Release(other.Acquire())
	assert.Equal(t, int64(1), p.Stats().Idle)
}

func TestAcquireSize(t *testing.T) {
	p, err := New(Config{BufferSize: 32, MinPoolSize: 0, MaxPoolSize: 1})
	require.NoError(t, err)

	small := p.AcquireSize(10)
	assert.True(t, small.Pooled())
	assert.Len(t, small.Bytes(), 10)
	p.Release(small)
	assert.Equal(t, int64(1), p.Stats().Idle)

	big := p.AcquireSize(100)
	assert.False(t, big.Pooled())
	assert.Len(t, big.Bytes(), 100)
	p.Release(big)
	assert.Equal(t, int64(1), p.Stats().Idle)
	assert.Equal(t, int64(1), p.Stats().Created)

	// Resliced pooled buffer comes back full length.
	again := p.Acquire()
	assert.Len(t, again.Bytes(), 32)
}

func TestConcurrentBound(t *testing.T) {
	const max = 8
	p, err := New(Config{BufferSize: 64, MinPoolSize: 2, MaxPoolSize: max})
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})

	for g := 0; g < 64; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				buf := p.Acquire()
				buf.B[0] = byte(i)
				p.Release(buf)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("acquire/release stalled")
	}

	stats := p.Stats()
	assert.LessOrEqual(t, stats.Created, int64(max))
	assert.Equal(t, int64(0), stats.Lent)
	assert.Equal(t, stats.Created, stats.Idle)
}
