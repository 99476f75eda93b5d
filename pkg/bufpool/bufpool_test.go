package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSizeClasses(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"Empty", 0, DefaultFrameSize},
		{"RequestFrame", 64, DefaultFrameSize},
		{"ExactFrame", DefaultFrameSize, DefaultFrameSize},
		{"StreamRead", DefaultFrameSize + 1, DefaultStreamSize},
		{"SmallFile", 5000, DefaultStreamSize},
		{"LargeFile", DefaultStreamSize + 1, DefaultFileSize},
		{"Oversized", DefaultFileSize + 1, DefaultFileSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestCustomPool(t *testing.T) {
	p := NewPool(&Config{FrameSize: 16, StreamSize: 128})

	small := p.Get(10)
	assert.Equal(t, 16, cap(small))

	mid := p.Get(100)
	assert.Equal(t, 128, cap(mid))

	big := p.Get(4096)
	assert.Equal(t, DefaultFileSize, cap(big))

	p.Put(small)
	p.Put(mid)
	p.Put(big)
}

func TestPutReuse(t *testing.T) {
	p := NewPool(nil)

	buf := p.Get(100)
	buf[0] = 0xAB
	p.Put(buf)

	again := p.Get(200)
	require.Len(t, again, 200)
	assert.Equal(t, DefaultFrameSize, cap(again))
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	p := NewPool(nil)

	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]byte, 17))
		p.Put(make([]byte, DefaultFileSize*2))
	})
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := Get((n*j)%4096 + 1)
				buf[0] = byte(n)
				Put(buf)
			}
		}(i)
	}
	wg.Wait()
}
