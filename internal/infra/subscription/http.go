package subscription

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxLineSize bounds one block payload on the stream.
const maxLineSize = 64 << 20

// HTTPStream reads newline-delimited block JSON from a long-lived GET
// request and reconnects when the stream ends.
type HTTPStream struct {
	url     string
	client  *http.Client
	backoff Backoff
	log     *slog.Logger
}

// NewHTTPStream creates a streaming subscriber for url.
func NewHTTPStream(url string, backoff Backoff, log *slog.Logger) *HTTPStream {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPStream{
		url: url,
		// No client timeout: the response body stays open indefinitely.
		client:  &http.Client{},
		backoff: backoff,
		log:     log.With("component", "subscription", "type", "http"),
	}
}

// Subscribe streams blocks to handler until ctx is done.
func (s *HTTPStream) Subscribe(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		received, err := s.stream(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			attempt = 0
		}

		delay := s.backoff.Delay(attempt)
		attempt++
		if err != nil {
			s.log.Warn("Block stream interrupted", "error", err, "retry_in", delay)
		} else {
			s.log.Info("Block stream closed by server", "retry_in", delay)
		}
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// stream runs one connection and returns the number of payloads read.
func (s *HTTPStream) stream(ctx context.Context, handler Handler) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	s.log.Info("Subscribed to block stream", "url", s.url)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		n++
		// The scanner reuses its buffer; handlers may outlive this iteration.
		deliver(ctx, s.log, "http", bytes.Clone(line), handler)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return n, fmt.Errorf("read stream: %w", err)
	}
	return n, nil
}
