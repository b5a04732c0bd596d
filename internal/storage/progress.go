package storage

import "sync"

// Progress turns uploaded byte counts into percentages in [0,100] that never decrease.
// It satisfies io.Reader so it can be handed to the object store as a progress hook.
type Progress struct {
	mu    sync.Mutex
	total int64
	sent  int64
	last  int
	fn    func(percent int)
}

// NewProgress reports 0 immediately.
func NewProgress(total int64, fn func(percent int)) *Progress {
	p := &Progress{total: total, last: -1, fn: fn}
	p.emit(0)
	return p
}

func (p *Progress) Read(b []byte) (int, error) {
	p.mu.Lock()
	p.sent += int64(len(b))
	percent := 99
	if p.total > 0 && p.sent < p.total {
		percent = int(p.sent * 100 / p.total)
	}
	if percent > 99 {
		percent = 99
	}
	p.mu.Unlock()

	p.emit(percent)
	return len(b), nil
}

// Done reports 100 once the object store has acknowledged the upload.
func (p *Progress) Done() {
	p.emit(100)
}

// emit holds the lock across the callback so concurrent chunks cannot reorder reports.
func (p *Progress) emit(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent <= p.last {
		return
	}
	p.last = percent
	if p.fn != nil {
		p.fn(percent)
	}
}
