package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitget/internal/segment"
	"github.com/tanq16/splitget/internal/utils"
	"golang.org/x/time/rate"
)

// Fetcher downloads one task into its partial file.
type Fetcher struct {
	Source     utils.Source
	Progress   ProgressSink
	Limiter    *rate.Limiter // optional, shared across segments
	BufferSize int
}

// Fetch streams the task's range into its partial file, flushing after every
// chunk. The partial is only created once the source answered. A fresh
// segment needs the partial path to be free; a resumed one appends to the
// partial it was planned from, even an empty one. On failure the partial is
// left in place so the next run can resume from it.
func (f *Fetcher) Fetch(ctx context.Context, task segment.Task) error {
	body, err := f.Source.FetchRange(ctx, task.SourceURL, task.Range.Low, task.Range.High)
	if err != nil {
		return fmt.Errorf("error requesting %s: %w", task.Range.Header(), err)
	}
	defer body.Close()

	file, err := openPartial(task.PartialPath(), task)
	if err != nil {
		return err
	}
	defer file.Close()
	log.Debug().Str("op", "download/fetch").Int("segment", task.ID).Str("range", task.Range.Header()).Int64("offset", task.Offset).Msg("segment started")

	bufferSize := f.BufferSize
	if bufferSize <= 0 {
		bufferSize = utils.DefaultBufferSize
	}
	writer := bufio.NewWriterSize(file, bufferSize)
	buffer := make([]byte, bufferSize)
	remaining := task.Remaining()
	var written int64
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			chunk := buffer[:bytesRead]
			overflow := written+int64(len(chunk)) > remaining
			if overflow {
				chunk = chunk[:remaining-written]
			}
			if f.Limiter != nil {
				if err := f.Limiter.WaitN(ctx, len(chunk)); err != nil {
					return err
				}
			}
			if _, err := writer.Write(chunk); err != nil {
				return fmt.Errorf("error writing partial file: %w", err)
			}
			if err := writer.Flush(); err != nil {
				return fmt.Errorf("error flushing partial file: %w", err)
			}
			written += int64(len(chunk))
			if f.Progress != nil {
				f.Progress.Add(task.ID, int64(len(chunk)))
			}
			if overflow {
				return fmt.Errorf("%w: server sent more than %d bytes", ErrSizeMismatch, remaining)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if written != remaining {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, remaining, written)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("error syncing partial file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("error closing partial file: %w", err)
	}
	log.Debug().Str("op", "download/fetch").Int("segment", task.ID).Int64("bytes", written).Msg("segment finished")
	return nil
}

func openPartial(path string, task segment.Task) (*os.File, error) {
	if !task.Resumed() {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrPartialExists, path)
		}
		if err != nil {
			return nil, fmt.Errorf("error creating partial file: %w", err)
		}
		return file, nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening partial file for resume: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() != task.Offset {
		file.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, planned from %d", ErrPartialChanged, path, info.Size(), task.Offset)
	}
	return file, nil
}
