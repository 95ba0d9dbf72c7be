package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitget/internal/utils"
)

var (
	ErrInvalidSegments  = errors.New("segment count must be at least 1")
	ErrNotPartitionable = errors.New("resource not partitionable")
	ErrPartialOversized = errors.New("partial file is larger than its segment")
)

// Plan is the per-run download configuration. It is built once after the
// target has been probed and handed to the coordinator and the assembler.
type Plan struct {
	Target      utils.TargetInfo
	Dir         string
	Segments    int
	SegmentSize int64
	Tasks       []Task
}

// NewPlan validates the partition parameters. Tasks are filled by AssignTasks.
func NewPlan(target utils.TargetInfo, dir string, segments int) (*Plan, error) {
	if segments < 1 {
		return nil, ErrInvalidSegments
	}
	if target.ContentLength <= 0 {
		return nil, fmt.Errorf("%w: content length %d", ErrNotPartitionable, target.ContentLength)
	}
	segmentSize := target.ContentLength / int64(segments)
	if segmentSize < 1 {
		return nil, fmt.Errorf("%w: %d bytes cannot fill %d segments", ErrNotPartitionable, target.ContentLength, segments)
	}
	if dir == "" {
		dir = "."
	}
	return &Plan{
		Target:      target,
		Dir:         dir,
		Segments:    segments,
		SegmentSize: segmentSize,
	}, nil
}

func (p *Plan) Range(index int) Range {
	return ComputeRange(index, p.Segments, p.SegmentSize, p.Target.ContentLength)
}

// Ranges returns the unadjusted range of every segment, in order.
func (p *Plan) Ranges() []Range {
	ranges := make([]Range, p.Segments)
	for i := range p.Segments {
		ranges[i] = p.Range(i)
	}
	return ranges
}

// PlannedLength is the length a complete partial file of segment index has.
func (p *Plan) PlannedLength(index int) int64 {
	if index == p.Segments-1 {
		return p.Range(index).Size()
	}
	return p.SegmentSize
}

func (p *Plan) PartialPath(index int) string {
	return PartialPath(p.Dir, p.Target.FileName, p.Segments, index)
}

func (p *Plan) OutputPath() string {
	return filepath.Join(p.Dir, p.Target.FileName)
}

// AssignTasks builds the task list, consulting partial files on disk. A
// segment whose partial already has its planned length produces no task; a
// shorter partial moves the task's low bound forward by its length.
func (p *Plan) AssignTasks() ([]Task, error) {
	var tasks []Task
	for i := range p.Segments {
		r := p.Range(i)
		task := Task{
			ID:            i,
			Range:         r,
			SourceURL:     p.Target.FinalURL,
			TotalSegments: p.Segments,
			FileName:      p.Target.FileName,
			Dir:           p.Dir,
			Last:          i == p.Segments-1,
		}
		info, err := os.Stat(p.PartialPath(i))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error checking partial file: %w", err)
		}
		if err == nil {
			existing := info.Size()
			planned := p.PlannedLength(i)
			switch {
			case existing == planned:
				log.Debug().Str("op", "segment/plan").Int("segment", i).Msg("segment already complete on disk")
				continue
			case existing > planned:
				return nil, fmt.Errorf("%w: segment %d has %d bytes, planned %d", ErrPartialOversized, i, existing, planned)
			}
			task.Range.Low += existing
			task.Offset = existing
			task.Exists = true
			log.Debug().Str("op", "segment/plan").Int("segment", i).Int64("offset", existing).Msg("resuming segment")
		}
		tasks = append(tasks, task)
	}
	p.Tasks = tasks
	return tasks, nil
}

// SegmentState describes what AssignTasks found for one segment.
type SegmentState struct {
	Index    int
	Range    Range
	Existing int64
	Planned  int64
}

func (s SegmentState) Complete() bool {
	return s.Existing == s.Planned
}

// States reports on-disk progress for every segment without building tasks.
func (p *Plan) States() ([]SegmentState, error) {
	states := make([]SegmentState, 0, p.Segments)
	for i := range p.Segments {
		state := SegmentState{Index: i, Range: p.Range(i), Planned: p.PlannedLength(i)}
		info, err := os.Stat(p.PartialPath(i))
		if err == nil {
			state.Existing = info.Size()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
