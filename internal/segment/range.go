package segment

import "fmt"

// Range is an inclusive byte interval of the target resource.
type Range struct {
	Low  int64
	High int64
}

// Size is High-Low. For the last segment, whose High is the content length,
// this is the exact number of bytes; for the others it is one short and only
// serves as an estimate.
func (r Range) Size() int64 {
	return r.High - r.Low
}

// Header renders the value of an HTTP Range header for r.
func (r Range) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Low, r.High)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Low, r.High)
}

// ComputeRange returns the planned range of segment index. Every segment but
// the last spans segmentSize bytes; the last one runs up to contentLength and
// absorbs the division remainder.
func ComputeRange(index, totalSegments int, segmentSize, contentLength int64) Range {
	low := segmentSize * int64(index)
	if index == totalSegments-1 {
		return Range{Low: low, High: contentLength}
	}
	return Range{Low: low, High: low + segmentSize - 1}
}
