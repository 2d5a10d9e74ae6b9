package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chunkmux/chunkmux/adapters/file"
	"github.com/chunkmux/chunkmux/adapters/httpfetch"
	"github.com/chunkmux/chunkmux/engine"
	"github.com/chunkmux/chunkmux/history"
	"github.com/chunkmux/chunkmux/internal/utils"
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Download a single URL using concurrent, work-stealing range requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringP("output", "o", ".", "output directory")
	runCmd.Flags().IntP("concurrency", "c", engine.DefaultConcurrency, "number of concurrent workers")
	runCmd.Flags().Int("chunk-size", 0, "size in bytes of each chunk read from an HTTP response body (0 = adapter default)")
	runCmd.Flags().Bool("watch", false, "show a live per-worker progress view")
	runCmd.Flags().Duration("retry-gap", engine.DefaultRetryGap, "delay between retries of a failed read or write")
}

func runRun(cmd *cobra.Command, args []string) error {
	url := args[0]
	outputDir, _ := cmd.Flags().GetString("output")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	watch, _ := cmd.Flags().GetBool("watch")
	retryGap, _ := cmd.Flags().GetDuration("retry-gap")

	dir := dataDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	utils.Debug("probing %s", url)
	probe, err := httpfetch.Probe(ctx, nil, url, "")
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	if !probe.SupportsRange {
		return fmt.Errorf("server does not support range requests; chunkmux requires them")
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	destPath := filepath.Join(outputDir, probe.Filename)

	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	runID, err := store.StartRun(ctx, url, destPath, probe.Filename, probe.ContentType, probe.FileSize)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}

	writer, err := file.CreateWriter(destPath, probe.FileSize)
	if err != nil {
		store.FinishRun(ctx, runID, history.StatusFailed, 0, err)
		return fmt.Errorf("create destination file: %w", err)
	}
	defer writer.Close()

	reader := httpfetch.NewReader(nil, url, chunkSize)

	opts := engine.Options{
		Chunks:     []engine.ProgressEntry{{Start: 0, End: probe.FileSize}},
		Concurrent: concurrency,
		RetryGap:   retryGap,
	}

	fmt.Printf("Downloading %s (%s) -> %s\n", probe.Filename, utils.ConvertBytesToHumanReadable(probe.FileSize), destPath)
	start := time.Now()

	h := engine.Run(ctx, reader, writer, opts)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\ncancelling...")
			h.Cancel()
		case <-ctx.Done():
		}
	}()

	var written int64
	if watch {
		written = runWatchView(h, probe.FileSize)
	} else {
		written = runPlainView(h, probe.FileSize, start)
	}

	<-h.WriterDone

	status := history.StatusCompleted
	if !h.Running() && written < probe.FileSize {
		status = history.StatusCancelled
	}
	// Record the outcome on a fresh context, independent of the run's
	// contexts (Ctrl+C cancels the engine's context through h.Cancel).
	if err := store.FinishRun(context.Background(), runID, status, written, nil); err != nil {
		utils.Debug("failed to record run finish: %v", err)
	}

	if status == history.StatusCompleted {
		if mime, err := sniffFileMIME(destPath); err != nil {
			utils.Debug("failed to sniff %s: %v", destPath, err)
		} else if mime != "" {
			if err := store.UpdateMIME(context.Background(), runID, mime); err != nil {
				utils.Debug("failed to record sniffed MIME for %s: %v", runID, err)
			}
		}
	}

	elapsed := time.Since(start)
	speed := float64(written) / elapsed.Seconds() / (1024 * 1024)
	fmt.Printf("Done: %s in %s (%.2f MB/s)\n", utils.ConvertBytesToHumanReadable(written), elapsed.Round(time.Millisecond), speed)
	return nil
}

// runPlainView prints a progress line every time downloaded bytes cross
// another 10% boundary, the way a headless run reports status.
func runPlainView(h *engine.Handle, total int64, start time.Time) int64 {
	var downloaded atomic.Int64
	var lastDecile int64

	for e := range h.Events {
		switch e.Kind {
		case engine.EventWriteProgress:
			n := downloaded.Add(e.Range.Len())
			if total > 0 {
				decile := (n * 10) / total
				if decile > lastDecile {
					lastDecile = decile
					speed := float64(n) / time.Since(start).Seconds() / (1024 * 1024)
					fmt.Printf("  %d%% (%s) - %.2f MB/s\n", decile*10, utils.ConvertBytesToHumanReadable(n), speed)
				}
			}
		case engine.EventReadError:
			fmt.Printf("  read error, retrying: %v\n", e.Err)
		case engine.EventWriteError:
			fmt.Printf("  write error, retrying: %v\n", e.Err)
		}
	}
	return downloaded.Load()
}

// sniffFileMIME reads the leading bytes of the assembled output and
// magic-byte-sniffs its MIME type via utils.SniffMIME, independent of
// whatever Content-Type the server claimed during the probe. Returns "" if
// the type is unrecognized.
func sniffFileMIME(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for sniff: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && n == 0 {
		return "", fmt.Errorf("read for sniff: %w", err)
	}
	return utils.SniffMIME(header[:n]), nil
}
