package progress

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards the buffer the board's ticker goroutine writes to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestBoardRendersRows(t *testing.T) {
	out := &syncBuffer{}
	b := New(out)

	b.Update("111", 512, 1024)
	b.Update("222", 0, -1)
	b.Finish("333", "not available")
	b.flush()

	got := out.String()
	assert.Contains(t, got, "111")
	assert.Contains(t, got, "50.00% (512.00B/1.00KB)")
	assert.Contains(t, got, "0B")
	assert.Contains(t, got, "333        not available")
}

func TestBoardConcurrentUpdates(t *testing.T) {
	out := &syncBuffer{}
	b := New(out)
	b.Start()

	var wg sync.WaitGroup
	for _, id := range []string{"1", "2", "3", "4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := int64(1); i <= 100; i++ {
				b.Update(id, i*10, 1000)
			}
			b.Finish(id, "done")
		}()
	}
	wg.Wait()
	b.Stop()

	got := out.String()
	for _, id := range []string{"1", "2", "3", "4"} {
		assert.Contains(t, got, id+"          done")
	}
}
