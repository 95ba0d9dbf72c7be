package download

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ProgressSink receives byte deltas from concurrently running fetchers.
type ProgressSink interface {
	Add(segment int, n int64)
}

// Progress keeps one lock-free counter per segment.
type Progress struct {
	counts []atomic.Int64
}

func NewProgress(segments int) *Progress {
	return &Progress{counts: make([]atomic.Int64, segments)}
}

func (p *Progress) Add(segment int, n int64) {
	if segment < 0 || segment >= len(p.counts) {
		return
	}
	p.counts[segment].Add(n)
}

func (p *Progress) Segment(segment int) int64 {
	if segment < 0 || segment >= len(p.counts) {
		return 0
	}
	return p.counts[segment].Load()
}

func (p *Progress) Total() int64 {
	var total int64
	for i := range p.counts {
		total += p.counts[i].Load()
	}
	return total
}

// NewLimiter returns a limiter shared by all fetchers of a run, or nil when
// bytesPerSecond is not positive. The burst always covers one read buffer.
func NewLimiter(bytesPerSecond int64, bufferSize int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := max(int(bytesPerSecond), bufferSize)
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}
