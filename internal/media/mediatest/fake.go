// Package mediatest provides in-process stand-ins for ffmpeg and ffprobe.
package mediatest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Runner records every invocation and writes a placeholder file at the
// output path (the last argument) unless Fail returns an error.
type Runner struct {
	mu    sync.Mutex
	Calls [][]string
	Fail  func(args []string) error
	// OnRun is called after a successful run with the output path.
	OnRun func(out string, args []string)
}

func (r *Runner) Run(ctx context.Context, args ...string) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, append([]string(nil), args...))
	fail, onRun := r.Fail, r.OnRun
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fail != nil {
		if err := fail(args); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		return nil
	}
	out := args[len(args)-1]
	if err := os.WriteFile(out, []byte("fake media: "+strings.Join(args, " ")), 0o644); err != nil {
		return err
	}
	if onRun != nil {
		onRun(out, args)
	}
	return nil
}

func (r *Runner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Joined returns call i as a single space separated string.
func (r *Runner) Joined(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.Calls[i], " ")
}

// Prober answers from a table keyed by file base name. Missing keys or
// missing files produce errors, like ffprobe would.
type Prober struct {
	mu        sync.Mutex
	Durations map[string]float64
	Errs      map[string]error
	Probed    []string
}

func NewProber(d map[string]float64) *Prober {
	return &Prober{Durations: d, Errs: map[string]error{}}
}

func (p *Prober) Set(name string, d float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Durations[name] = d
}

func (p *Prober) Probe(ctx context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Probed = append(p.Probed, path)
	name := filepath.Base(path)
	if err, ok := p.Errs[name]; ok {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	d, ok := p.Durations[name]
	if !ok {
		return 0, fmt.Errorf("no duration for %s", name)
	}
	return d, nil
}

// Touch creates a small file at path for use as test input.
func Touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("media"), 0o644)
}
