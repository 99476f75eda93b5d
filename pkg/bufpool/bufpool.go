// Package bufpool provides size-classed byte slice pools for the transfer
// paths: request frames on the control connection, payload reads on the
// client side and file reads on the server side.
//
// Buffers above the largest class are allocated directly and never pooled.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import "sync"

// Default size classes.
const (
	// DefaultFrameSize holds a control request frame.
	DefaultFrameSize = 1 << 10

	// DefaultStreamSize is used for socket reads while draining a payload.
	DefaultStreamSize = 32 << 10

	// DefaultFileSize covers typical whole-file reads.
	DefaultFileSize = 1 << 20
)

// Pool keeps one sync.Pool per size class.
type Pool struct {
	sizes []int
	pools []*sync.Pool
}

// Config holds the size classes of a custom pool. Zero fields use the
// defaults.
type Config struct {
	FrameSize  int
	StreamSize int
	FileSize   int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		FrameSize:  DefaultFrameSize,
		StreamSize: DefaultStreamSize,
		FileSize:   DefaultFileSize,
	}
}

// NewPool creates a pool. A nil config uses DefaultConfig.
func NewPool(cfg *Config) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.FrameSize > 0 {
			c.FrameSize = cfg.FrameSize
		}
		if cfg.StreamSize > 0 {
			c.StreamSize = cfg.StreamSize
		}
		if cfg.FileSize > 0 {
			c.FileSize = cfg.FileSize
		}
	}

	p := &Pool{sizes: []int{c.FrameSize, c.StreamSize, c.FileSize}}
	for _, size := range p.sizes {
		size := size
		p.pools = append(p.pools, &sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		})
	}
	return p
}

// Get returns a slice of length size. Its capacity is the matching size
// class, or exactly size when no class is large enough.
//
// Callers must Put the buffer back once they no longer reference it.
func (p *Pool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	for i, classSize := range p.sizes {
		if size <= classSize {
			buf := *p.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the class matching its capacity. Buffers of any other
// capacity are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for i, classSize := range p.sizes {
		if cap(buf) == classSize {
			full := buf[:classSize]
			p.pools[i].Put(&full)
			return
		}
	}
}

var globalPool = NewPool(nil)

// Get returns a buffer from the package-level pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the package-level pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
