package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitget/internal/segment"
	"golang.org/x/sync/errgroup"
)

// Coordinator runs every task of a plan concurrently and hands the result to
// the assembler once all of them succeeded.
type Coordinator struct {
	Fetcher   *Fetcher
	Assembler *Assembler
}

func (c *Coordinator) Run(ctx context.Context, plan *segment.Plan) error {
	if err := c.FetchAll(ctx, plan.Tasks); err != nil {
		return err
	}
	if err := Verify(plan); err != nil {
		return err
	}
	return c.Assembler.Assemble(plan)
}

// FetchAll starts one goroutine per task and waits for all of them. The
// first failure cancels the others; every segment that failed for a reason
// other than that cancellation is reported, in index order.
func (c *Coordinator) FetchAll(ctx context.Context, tasks []segment.Task) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var failures []*SegmentError
	for _, task := range tasks {
		g.Go(func() error {
			err := c.Fetcher.Fetch(gctx, task)
			if err == nil {
				return nil
			}
			segErr := &SegmentError{Index: task.ID, Err: err}
			mu.Lock()
			failures = append(failures, segErr)
			mu.Unlock()
			log.Error().Str("op", "download/coordinator").Int("segment", task.ID).Err(err).Msg("segment failed")
			return segErr
		})
	}
	firstErr := g.Wait()
	if firstErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("download interrupted: %w", ctx.Err())
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	var errs []error
	for _, f := range failures {
		if errors.Is(f.Err, context.Canceled) {
			continue
		}
		errs = append(errs, f)
	}
	if len(errs) == 0 {
		return firstErr
	}
	return errors.Join(errs...)
}

// Verify checks that every segment's partial file, including the ones that
// were already complete before this run, has exactly its planned length.
func Verify(plan *segment.Plan) error {
	for i := range plan.Segments {
		path := plan.PartialPath(i)
		info, err := os.Stat(path)
		if err != nil {
			return &SegmentError{Index: i, Err: fmt.Errorf("%w: %v", ErrIncomplete, err)}
		}
		if info.Size() != plan.PlannedLength(i) {
			return &SegmentError{Index: i, Err: fmt.Errorf("%w: %s has %d bytes, planned %d", ErrIncomplete, path, info.Size(), plan.PlannedLength(i))}
		}
	}
	return nil
}
