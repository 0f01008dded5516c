package pool

import (
	"sync"
	"testing"
)

func TestGetReturnsConfiguredSize(t *testing.T) {
	p := New(128, 2)
	b := p.Get()
	if len(b.Bytes()) != 128 {
		t.Fatalf("len = %d, want 128", len(b.Bytes()))
	}
}

func TestReleaseRecyclesBuffer(t *testing.T) {
	p := New(64, 1)
	b1 := p.Get()
	ptr1 := &b1.b[0]
	b1.Release()

	b2 := p.Get()
	if &b2.b[0] != ptr1 {
		t.Fatalf("expected Get to recycle the released buffer")
	}
}

func TestGrowsOnExhaustion(t *testing.T) {
	p := New(32, 1)
	bufs := make([]*buffer, 8)
	for i := range bufs {
		bufs[i] = p.Get() // exceeds initialCount; must not block or panic
	}
	for _, b := range bufs {
		if len(b.Bytes()) != 32 {
			t.Fatalf("grown buffer has wrong size: %d", len(b.Bytes()))
		}
	}
}

func TestConcurrentGetRelease(t *testing.T) {
	p := New(16, 4)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := p.Get()
				b.Bytes()[0] = 1
				b.Release()
			}
		}()
	}
	wg.Wait()
}
