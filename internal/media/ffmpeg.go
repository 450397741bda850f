package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"shorts-gen/internal/logging"
)

// Runner executes one ffmpeg invocation. args exclude the binary name and
// end with the output path; existing outputs are overwritten.
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// ffmpegSem limits the number of concurrent ffmpeg processes to avoid
// "pthread_create() failed: Resource temporarily unavailable" under heavy load.
var ffmpegSem = make(chan struct{}, 1)

// SetParallelism resizes the process limit. Call it once at startup before any run.
func SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	ffmpegSem = make(chan struct{}, n)
}

// TimeoutError reports an ffmpeg call that exceeded its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ffmpeg timed out after %s", e.Timeout)
}

type FFmpeg struct {
	Binary  string
	Timeout time.Duration
	log     *logging.Logger
}

func NewFFmpeg(timeout time.Duration, log *logging.Logger) *FFmpeg {
	return &FFmpeg{Binary: "ffmpeg", Timeout: timeout, log: log}
}

func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	select {
	case ffmpegSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ffmpegSem }()

	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Binary, full...)
	cmd.Stderr = &stderr

	f.log.Infof("[FFMPEG] %s", strings.Join(full, " "))
	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			f.log.Errorf("[FFMPEG] ✗ timed out after %s", f.Timeout)
			return &TimeoutError{Timeout: f.Timeout}
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		f.log.Errorf("[FFMPEG] ✗ ffmpeg failed (exit code: %v): %s", err, errMsg)
		return fmt.Errorf("ffmpeg error: %s", errMsg)
	}
	f.log.Infof("[FFMPEG] ✓ completed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// FormatSeconds renders s with millisecond precision and no trailing zeros.
func FormatSeconds(s float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", s), "0"), ".")
}
