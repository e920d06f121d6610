package bufpool

import (
	"testing"
)

func TestGet_SizeBuckets(t *testing.T) {
	tests := []struct {
		name        string
		requestSize uint32
		expectCap   int
	}{
		{"256KB bucket - exact", 256 * 1024, 256 * 1024},
		{"256KB bucket - smaller", 200 * 1024, 256 * 1024},
		{"512KB bucket - exact", 512 * 1024, 512 * 1024},
		{"512KB bucket - smaller", 400 * 1024, 512 * 1024},
		{"1MB bucket - exact", 1024 * 1024, 1024 * 1024},
		{"1MB bucket - smaller", 800 * 1024, 1024 * 1024},
		{"4MB bucket - overflow", 3 * 1024 * 1024, 4 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.requestSize)
			if len(buf) != int(tt.requestSize) {
				t.Errorf("Get(%d) returned len=%d, want %d", tt.requestSize, len(buf), tt.requestSize)
			}
			if cap(buf) != tt.expectCap {
				t.Errorf("Get(%d) returned cap=%d, want %d", tt.requestSize, cap(buf), tt.expectCap)
			}
			Put(buf)
		})
	}
}

func TestPool_Reuse(t *testing.T) {
	buf1 := Get(256 * 1024)
	ptr1 := &buf1[0]
	Put(buf1)

	buf2 := Get(256 * 1024)
	ptr2 := &buf2[0]
	Put(buf2)

	// sync.Pool may or may not reuse immediately; this just exercises the path.
	if ptr1 == ptr2 {
		t.Log("buffer was reused from pool")
	} else {
		t.Log("buffer was not reused (sync.Pool GC behavior)")
	}
}

func TestPut_NonStandardCap(t *testing.T) {
	buf := make([]byte, 100*1024) // not a standard bucket
	Put(buf)                      // must not panic
}

func BenchmarkGet_256KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Get(256 * 1024)
		Put(buf)
	}
}

func BenchmarkGet_1MB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Get(1024 * 1024)
		Put(buf)
	}
}
