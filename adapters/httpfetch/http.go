// Package httpfetch implements engine.RandReader over HTTP range requests,
// and a Probe helper to discover a server's size and range support ahead of
// partitioning a download.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vfaronov/httpheader"

	"github.com/chunkmux/chunkmux/engine"
	"github.com/chunkmux/chunkmux/internal/utils"
)

const probeTimeout = 15 * time.Second

var userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// ProbeResult describes what a ranged-GET probe learned about a URL.
type ProbeResult struct {
	FileSize      int64
	SupportsRange bool
	Filename      string
	ContentType   string
}

// Probe issues a single-byte ranged GET to rawurl to determine whether the
// server honors byte ranges and how large the resource is, making up to 3
// attempts when the request fails.
func Probe(ctx context.Context, client *http.Client, rawurl string, filenameHint string) (*ProbeResult, error) {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}

	var resp *http.Response
	var err error
	for i := 0; i < 3; i++ {
		if i > 0 {
			time.Sleep(time.Second)
			utils.Debug("retrying probe for %s, attempt %d", rawurl, i+1)
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		req, reqErr := http.NewRequestWithContext(probeCtx, http.MethodGet, rawurl, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("httpfetch: build probe request: %w", reqErr)
		}
		req.Header.Set("Range", "bytes=0-0")
		req.Header.Set("User-Agent", userAgent)

		resp, err = client.Do(req)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("httpfetch: probe failed after retries: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	result := &ProbeResult{}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.SupportsRange = true
		// ContentRange.Complete is the resource's total size from the
		// "bytes start-end/complete" header; -1 means the server withheld it.
		if cr, err := httpheader.ContentRange(resp.Header); err == nil && cr.Complete >= 0 {
			result.FileSize = cr.Complete
		}
	case http.StatusOK:
		result.SupportsRange = false
		result.FileSize = resp.ContentLength
	default:
		return nil, fmt.Errorf("httpfetch: unexpected status %d probing %s", resp.StatusCode, rawurl)
	}

	name, _, err := utils.DetermineFilename(rawurl, resp, false)
	if err != nil || name == "" {
		name = "download.bin"
	}
	if filenameHint != "" {
		result.Filename = filenameHint
	} else {
		result.Filename = name
	}
	result.ContentType = resp.Header.Get("Content-Type")
	return result, nil
}

// Reader is an engine.RandReader that issues one ranged GET per Read call
// and streams the response body in fixed-size chunks.
type Reader struct {
	client    *http.Client
	url       string
	chunkSize int
}

// NewReader builds a Reader for url. A nil client gets a default one with no
// per-request timeout (the caller's ctx governs cancellation).
func NewReader(client *http.Client, url string, chunkSize int) *Reader {
	if client == nil {
		client = &http.Client{}
	}
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &Reader{client: client, url: url, chunkSize: chunkSize}
}

// Clone returns a Reader sharing the same *http.Client (safe for concurrent
// use) so every worker reuses the same connection pool.
func (r *Reader) Clone() engine.RandReader {
	return &Reader{client: r.client, url: r.url, chunkSize: r.chunkSize}
}

func (r *Reader) Read(ctx context.Context, rng engine.ProgressEntry) <-chan engine.Chunk {
	out := make(chan engine.Chunk, 1)
	go func() {
		defer close(out)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
		if err != nil {
			sendErr(ctx, out, fmt.Errorf("httpfetch: build request: %w", err))
			return
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End-1))

		resp, err := r.client.Do(req)
		if err != nil {
			sendErr(ctx, out, fmt.Errorf("httpfetch: request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			sendErr(ctx, out, fmt.Errorf("httpfetch: rate limited (429)"))
			return
		}
		if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
			sendErr(ctx, out, fmt.Errorf("httpfetch: unexpected status %d", resp.StatusCode))
			return
		}

		buf := make([]byte, r.chunkSize)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- engine.Chunk{Data: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if readErr != nil {
				if readErr != io.EOF {
					sendErr(ctx, out, fmt.Errorf("httpfetch: read body: %w", readErr))
				}
				return
			}
		}
	}()
	return out
}

func sendErr(ctx context.Context, out chan<- engine.Chunk, err error) {
	select {
	case out <- engine.Chunk{Err: err}:
	case <-ctx.Done():
	}
}
