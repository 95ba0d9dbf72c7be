package download

import (
	"errors"
	"fmt"
)

var (
	ErrPartialExists  = errors.New("partial file already exists")
	ErrPartialChanged = errors.New("partial file changed since planning")
	ErrSizeMismatch   = errors.New("size mismatch")
	ErrIncomplete     = errors.New("segment incomplete")
	ErrOutputExists   = errors.New("output file already exists")
)

// SegmentError ties a failure to the segment that produced it.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

type AssemblyError struct {
	Path string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s: %v", e.Path, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
