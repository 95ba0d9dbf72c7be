package splithttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitget/internal/utils"
)

var ErrUnexpectedRange = errors.New("server answered with a different range")

// HTTPSource serves byte ranges of an http(s) resource.
type HTTPSource struct {
	client *utils.SplitHTTPClient
}

func NewHTTPSource(cfg utils.HTTPClientConfig) *HTTPSource {
	return &HTTPSource{client: utils.NewSplitHTTPClient(cfg)}
}

// Probe issues a plain GET and inspects only the response headers. The
// resource must report a positive length and advertise byte ranges. When
// redirects were followed, the final URL names the file and is used for
// every segment request.
func (s *HTTPSource) Probe(ctx context.Context, rawURL string) (*utils.TargetInfo, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, &utils.ProbeError{URL: rawURL, Err: fmt.Errorf("invalid URL: %w", err)}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, &utils.ProbeError{URL: rawURL, Err: fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, parsedURL.Scheme)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &utils.ProbeError{URL: rawURL, Err: fmt.Errorf("error creating request: %w", err)}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &utils.ProbeError{URL: rawURL, Err: err}
	}
	// the body is never needed; closing early drops the connection
	resp.Body.Close()
	log.Debug().Str("op", "http/probe").Int("status", resp.StatusCode).Interface("headers", resp.Header).Msg("probe response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &utils.ProbeError{URL: rawURL, Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}
	if resp.ContentLength <= 0 {
		return nil, &utils.ProbeError{URL: rawURL, Err: utils.ErrMissingContentLength}
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		return nil, &utils.ProbeError{URL: rawURL, Err: utils.ErrRangeRequestsNotSupported}
	}

	finalURL := parsedURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	if finalURL.String() != rawURL {
		log.Debug().Str("op", "http/probe").Str("from", rawURL).Str("to", finalURL.String()).Msg("following redirect target")
	}
	fileName, err := FileNameFromURL(finalURL)
	if err != nil {
		return nil, &utils.ProbeError{URL: rawURL, Err: err}
	}
	return &utils.TargetInfo{
		FinalURL:      finalURL.String(),
		FileName:      fileName,
		ContentLength: resp.ContentLength,
	}, nil
}

// FetchRange requests bytes low..high (inclusive) and returns the body. A
// server that ignores the Range header is rejected rather than streamed.
func (s *HTTPSource) FetchRange(ctx context.Context, target string, low, high int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", low, high))
	req.Header.Set("Connection", "keep-alive")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil, utils.ErrRangeRequestsNotSupported
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	contentRange := resp.Header.Get("Content-Range")
	if contentRange == "" {
		resp.Body.Close()
		return nil, errors.New("missing Content-Range header")
	}
	start, _, _, err := ParseContentRange(contentRange)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if start != low {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: asked for %d, got %s", ErrUnexpectedRange, low, contentRange)
	}
	return resp.Body, nil
}

// FileNameFromURL returns the last path segment of u.
func FileNameFromURL(u *url.URL) (string, error) {
	parts := strings.Split(u.Path, "/")
	name := parts[len(parts)-1]
	if name == "" || name == "." || name == ".." {
		return "", utils.ErrNoFileName
	}
	return name, nil
}

// ParseContentRange parses "bytes start-end/total"; total is -1 when unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	if start, err = strconv.ParseInt(rangeParts[0], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	if end, err = strconv.ParseInt(rangeParts[1], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if parts[1] == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	return start, end, total, nil
}
