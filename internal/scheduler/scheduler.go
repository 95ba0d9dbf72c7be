package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitget/internal/download"
	splithttp "github.com/tanq16/splitget/internal/downloaders/http"
	s3source "github.com/tanq16/splitget/internal/downloaders/s3"
	"github.com/tanq16/splitget/internal/output"
	"github.com/tanq16/splitget/internal/segment"
	"github.com/tanq16/splitget/internal/utils"
)

const progressTick = 100 * time.Millisecond

// Options describes one download run.
type Options struct {
	URL string
	// OutputName replaces the file name derived from the URL.
	OutputName string
	Dir        string
	Segments   int
	HTTP       utils.HTTPClientConfig
	S3         s3source.Options
	// Limit caps the combined bandwidth in bytes per second.
	Limit      int64
	BufferSize int
	Quiet      bool
	// Output receives the progress display, stdout when nil.
	Output io.Writer
}

// withOutputDir moves the directory part of OutputName into Dir, so
// "-o out/file.bin" puts partials and output under out/. An absolute
// directory replaces Dir.
func (o Options) withOutputDir() (Options, error) {
	if o.OutputName == "" {
		return o, nil
	}
	parent, name := filepath.Split(o.OutputName)
	if name == "" || name == "." || name == ".." {
		return o, fmt.Errorf("%w: output %q", utils.ErrNoFileName, o.OutputName)
	}
	o.OutputName = name
	switch {
	case parent == "":
	case filepath.IsAbs(parent):
		o.Dir = filepath.Clean(parent)
	default:
		base := o.Dir
		if base == "" {
			base = "."
		}
		o.Dir = filepath.Join(base, parent)
	}
	return o, nil
}

// NewSource picks the transport for the URL's scheme.
func NewSource(ctx context.Context, opts Options) (utils.Source, error) {
	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, &utils.ProbeError{URL: opts.URL, Err: fmt.Errorf("invalid URL: %w", err)}
	}
	switch parsed.Scheme {
	case "http", "https":
		return splithttp.NewHTTPSource(opts.HTTP), nil
	case "s3":
		source, err := s3source.NewS3Source(ctx, opts.S3)
		if err != nil {
			return nil, &utils.ProbeError{URL: opts.URL, Err: err}
		}
		return source, nil
	default:
		return nil, &utils.ProbeError{URL: opts.URL, Err: fmt.Errorf("%w: %q", utils.ErrUnsupportedScheme, parsed.Scheme)}
	}
}

// Prepare probes the target and partitions it. The returned plan has no
// tasks yet; the segment count is lowered to the content length when the
// resource has fewer bytes than requested segments.
func Prepare(ctx context.Context, source utils.Source, opts Options) (*segment.Plan, error) {
	opts, err := opts.withOutputDir()
	if err != nil {
		return nil, err
	}
	target, err := source.Probe(ctx, opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.OutputName != "" {
		target.FileName = opts.OutputName
	}
	segments := opts.Segments
	if segments < 1 {
		segments = utils.DefaultSegments
	}
	if target.ContentLength > 0 && int64(segments) > target.ContentLength {
		log.Warn().Str("op", "scheduler/prepare").Int("requested", segments).Int64("length", target.ContentLength).Msg("fewer bytes than segments, reducing segment count")
		segments = int(target.ContentLength)
	}
	return segment.NewPlan(*target, opts.Dir, segments)
}

// Status plans the download and reports what is already on disk without
// fetching anything.
func Status(ctx context.Context, opts Options) (*segment.Plan, []segment.SegmentState, error) {
	source, err := NewSource(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	plan, err := Prepare(ctx, source, opts)
	if err != nil {
		return nil, nil, err
	}
	states, err := plan.States()
	if err != nil {
		return nil, nil, err
	}
	return plan, states, nil
}

// Run executes planning, fetching and assembly for one URL.
func Run(ctx context.Context, opts Options) error {
	runLog := utils.GetLogger("scheduler").With().Str("run", uuid.New().String()).Logger()
	runLog.Info().Str("op", "scheduler/run").Str("url", opts.URL).Int("segments", opts.Segments).Msg("starting run")

	opts, err := opts.withOutputDir()
	if err != nil {
		return err
	}
	source, err := NewSource(ctx, opts)
	if err != nil {
		return err
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("error creating directory: %w", err)
		}
	}
	plan, err := Prepare(ctx, source, opts)
	if err != nil {
		return err
	}
	states, err := plan.States()
	if err != nil {
		return err
	}
	if _, err := plan.AssignTasks(); err != nil {
		return err
	}
	runLog.Info().Str("op", "scheduler/run").Str("file", plan.Target.FileName).Int64("length", plan.Target.ContentLength).Int("tasks", len(plan.Tasks)).Msg("planned download")

	display := output.NewManager(fmt.Sprintf("%s (%s, %d segments)", plan.Target.FileName, utils.FormatBytes(uint64(plan.Target.ContentLength)), plan.Segments))
	if opts.Quiet {
		display.SetQuiet(true)
	}
	if opts.Output != nil {
		display.SetOutput(opts.Output)
	}
	for _, state := range states {
		id := display.Register(fmt.Sprintf("segment %d %s", state.Index, state.Range), state.Planned)
		if state.Complete() {
			display.Complete(id, "already on disk")
		} else {
			display.SetProgress(id, state.Existing)
		}
	}

	progress := download.NewProgress(plan.Segments)
	coordinator := &download.Coordinator{
		Fetcher: &download.Fetcher{
			Source:     source,
			Progress:   progress,
			Limiter:    download.NewLimiter(opts.Limit, max(opts.BufferSize, utils.DefaultBufferSize)),
			BufferSize: opts.BufferSize,
		},
		Assembler: &download.Assembler{},
	}

	display.StartDisplay()
	stopTicker := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(progressTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pushProgress(display, states, progress)
			case <-stopTicker:
				pushProgress(display, states, progress)
				return
			}
		}
	}()

	err = coordinator.Run(ctx, plan)
	close(stopTicker)
	<-tickerDone
	reportErrors(display, err)
	display.StopDisplay()

	if err != nil {
		runLog.Error().Str("op", "scheduler/run").Err(err).Msg("run failed")
		return err
	}
	runLog.Info().Str("op", "scheduler/run").Str("path", plan.OutputPath()).Msg("download complete")
	return nil
}

func pushProgress(display *output.Manager, states []segment.SegmentState, progress *download.Progress) {
	for _, state := range states {
		if state.Complete() {
			continue
		}
		current := state.Existing + progress.Segment(state.Index)
		display.SetProgress(state.Index, current)
		if current == state.Planned {
			display.Complete(state.Index, "")
		}
	}
}

func reportErrors(display *output.Manager, err error) {
	if err == nil {
		return
	}
	segErrs := SegmentErrors(err)
	for _, segErr := range segErrs {
		display.ReportError(segErr.Index, segErr.Err)
	}
	if len(segErrs) == 0 {
		display.ReportRunError("download", err)
	}
}

// SegmentErrors returns the per-segment failures contained in err.
func SegmentErrors(err error) []*download.SegmentError {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []*download.SegmentError
		for _, e := range joined.Unwrap() {
			out = append(out, SegmentErrors(e)...)
		}
		return out
	}
	var segErr *download.SegmentError
	if errors.As(err, &segErr) {
		return []*download.SegmentError{segErr}
	}
	return nil
}
