package download

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitget/internal/segment"
	"github.com/tanq16/splitget/internal/utils"
)

// Assembler concatenates the partial files of a plan into the output file.
type Assembler struct{}

// Assemble writes every partial, in segment order, into a temporary file
// next to the output, renames it into place and only then deletes the
// partials. A failure before the rename leaves the partials untouched.
func (a *Assembler) Assemble(plan *segment.Plan) error {
	final := plan.OutputPath()
	if err := ensureAbsent(final); err != nil {
		return err
	}
	tempPath := final + utils.AssemblingSuffix
	if err := os.Remove(tempPath); err == nil {
		log.Warn().Str("op", "download/assembler").Str("path", tempPath).Msg("removed stale assembly file")
	}
	out, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return &AssemblyError{Path: final, Err: err}
	}
	if err := a.copyParts(out, plan); err != nil {
		out.Close()
		os.Remove(tempPath)
		return &AssemblyError{Path: final, Err: err}
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tempPath)
		return &AssemblyError{Path: final, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return &AssemblyError{Path: final, Err: err}
	}
	if err := ensureAbsent(final); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, final); err != nil {
		os.Remove(tempPath)
		return &AssemblyError{Path: final, Err: fmt.Errorf("error renaming (finalizing) output file: %w", err)}
	}
	for i := range plan.Segments {
		if err := os.Remove(plan.PartialPath(i)); err != nil {
			return &AssemblyError{Path: final, Err: fmt.Errorf("error removing partial file: %w", err)}
		}
	}
	log.Debug().Str("op", "download/assembler").Str("path", final).Int64("size", plan.Target.ContentLength).Msg("assembled output")
	return nil
}

func (a *Assembler) copyParts(out io.Writer, plan *segment.Plan) error {
	var total int64
	for i := range plan.Segments {
		in, err := os.Open(plan.PartialPath(i))
		if err != nil {
			return fmt.Errorf("error opening partial %d: %w", i, err)
		}
		written, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("error copying partial %d: %w", i, err)
		}
		total += written
	}
	if total != plan.Target.ContentLength {
		return fmt.Errorf("%w: expected %d, got %d", ErrSizeMismatch, plan.Target.ContentLength, total)
	}
	return nil
}

func ensureAbsent(path string) error {
	_, err := os.Lstat(path)
	if err == nil {
		return &AssemblyError{Path: path, Err: ErrOutputExists}
	}
	if !errors.Is(err, os.ErrNotExist) {
		return &AssemblyError{Path: path, Err: err}
	}
	return nil
}
