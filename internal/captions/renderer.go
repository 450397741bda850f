package captions

import (
	"context"
	"fmt"
	"os"
	"time"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
)

type Phase int

const (
	NotStarted Phase = iota
	TryingStrategy
	Succeeded
	ExhaustedFailed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "NotStarted"
	case TryingStrategy:
		return "TryingStrategy"
	case Succeeded:
		return "Succeeded"
	case ExhaustedFailed:
		return "ExhaustedFailed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// RenderState is a renderer state; Index is the strategy being tried or the
// one that succeeded.
type RenderState struct {
	Phase Phase
	Index int
}

func (s RenderState) String() string {
	switch s.Phase {
	case TryingStrategy:
		return fmt.Sprintf("TryingStrategy(%d)", s.Index)
	case Succeeded:
		return fmt.Sprintf("Succeeded(%d)", s.Index)
	}
	return s.Phase.String()
}

// Terminal reports whether no further transition is possible.
func (s RenderState) Terminal() bool {
	return s.Phase == Succeeded || s.Phase == ExhaustedFailed
}

// next is the transition function over n strategies.
func (s RenderState) next(ok bool, n int) RenderState {
	switch s.Phase {
	case NotStarted:
		if n == 0 {
			return RenderState{Phase: ExhaustedFailed}
		}
		return RenderState{Phase: TryingStrategy}
	case TryingStrategy:
		if ok {
			return RenderState{Phase: Succeeded, Index: s.Index}
		}
		if s.Index+1 < n {
			return RenderState{Phase: TryingStrategy, Index: s.Index + 1}
		}
		return RenderState{Phase: ExhaustedFailed}
	}
	return s
}

type RenderResult struct {
	State    RenderState
	Output   string // captioned video, or the input video when exhausted
	Strategy string
	Attempts []model.RenderAttempt
	Trace    []RenderState
}

// Renderer tries strategies in order and stops at the first success. A
// strategy's errors, timeouts and panics are recorded, never returned.
type Renderer struct {
	strategies []Strategy
	timeout    time.Duration
	log        *logging.Logger
}

func NewRenderer(strategies []Strategy, timeout time.Duration, log *logging.Logger) *Renderer {
	return &Renderer{strategies: strategies, timeout: timeout, log: log}
}

func (r *Renderer) Render(ctx context.Context, job RenderJob) RenderResult {
	state := RenderState{Phase: NotStarted}
	res := RenderResult{Output: job.Video.Path, Trace: []RenderState{state}}
	if len(job.Cues) == 0 {
		r.log.Infof("render: no cues, skipping caption burn")
		res.State = state
		return res
	}

	state = state.next(false, len(r.strategies))
	res.Trace = append(res.Trace, state)
	for !state.Terminal() {
		s := r.strategies[state.Index]
		r.log.Infof("render: trying strategy %d/%d %q", state.Index+1, len(r.strategies), s.Name())
		out, attempt := r.attempt(ctx, s, job)
		res.Attempts = append(res.Attempts, attempt)
		ok := attempt.Outcome == model.AttemptSuccess
		if ok {
			res.Output = out
			res.Strategy = s.Name()
			r.log.Infof("render: ✓ captions burned with %q in %s", s.Name(), attempt.Elapsed.Round(time.Millisecond))
		} else {
			r.log.Warnf("render: ✗ strategy %q failed: %s", s.Name(), attempt.Diagnostic)
		}
		state = state.next(ok, len(r.strategies))
		res.Trace = append(res.Trace, state)
	}
	if state.Phase == ExhaustedFailed {
		r.log.Warnf("render: all %d strategies failed, shipping without captions", len(r.strategies))
	}
	res.State = state
	return res
}

func (r *Renderer) attempt(ctx context.Context, s Strategy, job RenderJob) (out string, a model.RenderAttempt) {
	a.StrategyID = s.Name()
	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		a.Elapsed = time.Since(start)
		if p := recover(); p != nil {
			out = ""
			a.Outcome = model.AttemptFailure
			a.Diagnostic = fmt.Sprintf("panic: %v", p)
		}
	}()

	out, err := s.Attempt(ctx, job)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil {
		err = checkOutput(out)
	}
	if err != nil {
		a.Outcome = model.AttemptFailure
		a.Diagnostic = err.Error()
		return "", a
	}
	a.Outcome = model.AttemptSuccess
	return out, a
}

func checkOutput(path string) error {
	if path == "" {
		return fmt.Errorf("strategy returned no output")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output %s is empty", path)
	}
	return nil
}
