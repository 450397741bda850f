package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"shorts-gen/internal/model"
)

// Prober returns the playable duration of a media file in seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// ProbeError means the file is unreadable or carries no usable duration.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

var errNoDuration = errors.New("no duration metadata")

type FFProbe struct {
	Timeout time.Duration
	// probe returns ffprobe's JSON output; replaced in tests.
	probe func(path string, timeout time.Duration) (string, error)
}

func NewFFProbe(timeout time.Duration) *FFProbe {
	return &FFProbe{
		Timeout: timeout,
		probe: func(path string, timeout time.Duration) (string, error) {
			return ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
		},
	}
}

func (p *FFProbe) Probe(ctx context.Context, path string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	if _, err := os.Stat(path); err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	out, err := p.probe(path, timeout)
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	d, err := parseProbeDuration(out)
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	return d, nil
}

// parseProbeDuration reads format.duration, falling back to the longest stream.
func parseProbeDuration(js string) (float64, error) {
	if !gjson.Valid(js) {
		return 0, errors.New("invalid ffprobe json")
	}
	if v := gjson.Get(js, "format.duration"); v.Exists() {
		d, err := strconv.ParseFloat(v.String(), 64)
		if err == nil {
			if d < 0 {
				return 0, fmt.Errorf("negative duration %g", d)
			}
			return d, nil
		}
	}
	best, found := 0.0, false
	for _, v := range gjson.Get(js, "streams.#.duration").Array() {
		d, err := strconv.ParseFloat(v.String(), 64)
		if err != nil || d < 0 {
			continue
		}
		if !found || d > best {
			best, found = d, true
		}
	}
	if !found {
		return 0, errNoDuration
	}
	return best, nil
}

// ProbeAsset probes path and wraps the result.
func ProbeAsset(ctx context.Context, p Prober, path string, kind model.MediaKind) (model.MediaAsset, error) {
	d, err := p.Probe(ctx, path)
	if err != nil {
		return model.MediaAsset{}, err
	}
	return model.MediaAsset{Path: path, Kind: kind, Duration: d}, nil
}
