package video

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/media"
	"shorts-gen/internal/model"
)

// Anchor selects which part of an over-long visual survives trimming.
type Anchor string

const (
	AnchorStart  Anchor = "start"
	AnchorCenter Anchor = "center"
)

// ZeroDurationError is returned for a visual that cannot be looped.
type ZeroDurationError struct {
	Path string
}

func (e *ZeroDurationError) Error() string {
	return fmt.Sprintf("visual %s has zero duration", e.Path)
}

type MatchResult struct {
	Asset             model.MediaAsset
	Loops             int // copies concatenated before trimming; 1 means trim only
	ToleranceExceeded bool
}

// Matcher forces a visual asset to an exact target duration by trimming or
// loop-and-trim.
type Matcher struct {
	runner    media.Runner
	prober    media.Prober
	log       *logging.Logger
	Tolerance time.Duration
	Anchor    Anchor
}

func NewMatcher(runner media.Runner, prober media.Prober, tolerance time.Duration, log *logging.Logger) *Matcher {
	return &Matcher{runner: runner, prober: prober, log: log, Tolerance: tolerance, Anchor: AnchorStart}
}

// LoopCount returns how many back-to-back copies of a src-long asset are
// needed to strictly exceed target. It is 1 when no looping is needed.
func LoopCount(src, target float64) (int, error) {
	if src <= 0 {
		return 0, fmt.Errorf("source duration must be positive, got %g", src)
	}
	if src >= target {
		return 1, nil
	}
	return int(math.Floor(target/src)) + 1, nil
}

func (m *Matcher) Match(ctx context.Context, ws *media.Workspace, src model.MediaAsset, target float64) (MatchResult, error) {
	if target <= 0 {
		return MatchResult{}, fmt.Errorf("match: target duration must be positive, got %g", target)
	}
	d, err := m.prober.Probe(ctx, src.Path)
	if err != nil {
		return MatchResult{}, err
	}
	src.Duration = d
	if d == 0 {
		return MatchResult{}, &ZeroDurationError{Path: src.Path}
	}

	loops, err := LoopCount(d, target)
	if err != nil {
		return MatchResult{}, err
	}
	ext := filepath.Ext(src.Path)
	if ext == "" {
		ext = ".mp4"
	}

	input := src.Path
	offset := 0.0
	if loops == 1 {
		if m.Anchor == AnchorCenter {
			offset = (d - target) / 2
		}
		m.log.Infof("match: visual %.2fs >= target %.2fs, trimming (offset %.2fs)", d, target, offset)
	} else {
		m.log.Infof("match: visual %.2fs < target %.2fs, looping %dx (%.2fs) then trimming", d, target, loops, float64(loops)*d)
		list := ws.Path("visual_concat.txt")
		if err := media.WriteConcatList(list, src.Path, loops); err != nil {
			return MatchResult{}, fmt.Errorf("match: concat list: %w", err)
		}
		looped := ws.Path("looped" + ext)
		if err := m.runner.Run(ctx, concatArgs(list, looped)...); err != nil {
			return MatchResult{}, fmt.Errorf("match: concatenate %d loops: %w", loops, err)
		}
		input = looped
	}

	out := ws.Path("matched" + ext)
	if err := m.runner.Run(ctx, trimArgs(input, out, offset, target, true)...); err != nil {
		m.log.Warnf("match: stream-copy trim failed, re-encoding: %v", err)
		if err := m.runner.Run(ctx, trimArgs(input, out, offset, target, false)...); err != nil {
			return MatchResult{}, fmt.Errorf("match: trim to %.2fs: %w", target, err)
		}
	}

	got, err := m.prober.Probe(ctx, out)
	if err != nil {
		return MatchResult{}, fmt.Errorf("match: probe output: %w", err)
	}
	res := MatchResult{
		Asset: model.MediaAsset{Path: out, Kind: model.MediaVideo, Duration: got},
		Loops: loops,
	}
	if math.Abs(got-target) > m.Tolerance.Seconds() {
		res.ToleranceExceeded = true
		m.log.Warnf("match: output %.2fs differs from target %.2fs by more than %s", got, target, m.Tolerance)
	} else {
		m.log.Infof("match: ✓ visual matched to %.2fs", got)
	}
	return res, nil
}

func concatArgs(list, out string) []string {
	return ffmpeg.Input(list, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(out, ffmpeg.KwArgs{"c": "copy"}).
		GetArgs()
}

func trimArgs(in, out string, offset, target float64, copyStreams bool) []string {
	inKw := ffmpeg.KwArgs{}
	if offset > 0 {
		inKw["ss"] = media.FormatSeconds(offset)
	}
	outKw := ffmpeg.KwArgs{"t": media.FormatSeconds(target)}
	if copyStreams {
		outKw["c"] = "copy"
	} else {
		outKw["c:v"] = "libx264"
		outKw["preset"] = "ultrafast"
		outKw["pix_fmt"] = "yuv420p"
		outKw["c:a"] = "aac"
	}
	return ffmpeg.Input(in, inKw).Output(out, outKw).GetArgs()
}
