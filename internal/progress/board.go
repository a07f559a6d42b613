// Package progress renders a live per-beatmapset download board on the terminal.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go-osu-download/internal/helpers"

	"github.com/gosuri/uilive"
)

const refreshInterval = 150 * time.Millisecond

type row struct {
	written, total int64
	status         string // set once the id has settled
}

// Board tracks download progress and redraws it in place. Update and Finish
// may be called from any goroutine.
type Board struct {
	mu    sync.Mutex
	w     *uilive.Writer
	order []string
	rows  map[string]*row

	stop chan struct{}
	done chan struct{}
}

// New creates a board writing to out.
func New(out io.Writer) *Board {
	w := uilive.New()
	w.Out = out
	return &Board{w: w, rows: map[string]*row{}}
}

// Start begins periodic redraws until Stop is called.
func (b *Board) Start() {
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.flush()
			case <-b.stop:
				return
			}
		}
	}()
}

// Stop halts redraws and prints the final state.
func (b *Board) Stop() {
	if b.stop != nil {
		close(b.stop)
		<-b.done
		b.stop = nil
	}
	b.flush()
}

// Update records bytes written so far for id. It matches the downloader's
// progress callback.
func (b *Board) Update(id string, written, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.row(id)
	r.written, r.total = written, total
}

// Finish marks id as settled with a short status text.
func (b *Board) Finish(id, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.row(id).status = status
}

func (b *Board) row(id string) *row {
	r, ok := b.rows[id]
	if !ok {
		r = &row{}
		b.rows[id] = r
		b.order = append(b.order, id)
	}
	return r
}

func (b *Board) flush() {
	b.mu.Lock()
	for _, id := range b.order {
		fmt.Fprintln(b.w, b.rows[id].line(id))
	}
	b.mu.Unlock()
	_ = b.w.Flush()
}

func (r *row) line(id string) string {
	if r.status != "" {
		return fmt.Sprintf("%-10s %s", id, r.status)
	}
	if r.total <= 0 {
		return fmt.Sprintf("%-10s %s", id, helpers.BytesToSize(uint64(r.written)))
	}
	pct := float64(r.written) / float64(r.total) * 100
	return fmt.Sprintf("%-10s %6.2f%% (%s/%s)", id, pct,
		helpers.BytesToSize(uint64(r.written)), helpers.BytesToSize(uint64(r.total)))
}
