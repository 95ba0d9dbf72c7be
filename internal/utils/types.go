package utils

import (
	"context"
	"fmt"
	"io"
)

// Source is the transport capability the downloader is built on: it resolves
// a target once and then serves inclusive byte ranges of it as streams.
type Source interface {
	Probe(ctx context.Context, rawURL string) (*TargetInfo, error)
	FetchRange(ctx context.Context, target string, low, high int64) (io.ReadCloser, error)
}

// TargetInfo is resolved once per run before planning.
type TargetInfo struct {
	FinalURL      string
	FileName      string
	ContentLength int64
}

type ProbeError struct {
	URL string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
