package segment

import (
	"fmt"
	"path/filepath"
)

// Task is one segment that still has bytes to fetch.
type Task struct {
	ID            int
	Range         Range
	SourceURL     string
	TotalSegments int
	FileName      string
	Dir           string
	// Offset is the number of bytes already present in the partial file.
	Offset int64
	// Exists is set when a partial file, possibly empty, was on disk at
	// planning time.
	Exists bool
	Last   bool
}

// Remaining is the exact number of bytes the fetch has to write.
func (t Task) Remaining() int64 {
	if t.Last {
		return t.Range.High - t.Range.Low
	}
	return t.Range.High - t.Range.Low + 1
}

// Resumed reports whether the fetch continues an existing partial file.
func (t Task) Resumed() bool {
	return t.Exists
}

func (t Task) PartialPath() string {
	return PartialPath(t.Dir, t.FileName, t.TotalSegments, t.ID)
}

// PartialPath is <dir>/<fileName>.<totalSegments>.<index>.
func PartialPath(dir, fileName string, totalSegments, index int) string {
	return filepath.Join(dir, PartialName(fileName, totalSegments, index))
}

func PartialName(fileName string, totalSegments, index int) string {
	return fmt.Sprintf("%s.%d.%d", fileName, totalSegments, index)
}
