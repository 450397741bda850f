package scheduler

import (
	"context"
	"sync"
	"time"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/media"
	"shorts-gen/internal/pipeline"
)

const staleWorkspaceAge = 2 * time.Hour

// Janitor keeps the scratch directory and the staging area bounded: it
// sweeps abandoned workspaces, expired clip bans and videos older than
// MAX_AGE.
type Janitor struct {
	gen        *pipeline.Generator
	scratchDir string
	maxAge     time.Duration
	log        *logging.Logger
	interval   time.Duration
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewJanitor(gen *pipeline.Generator, scratchDir string, maxAge time.Duration, log *logging.Logger) *Janitor {
	return &Janitor{
		gen:        gen,
		scratchDir: scratchDir,
		maxAge:     maxAge,
		log:        log,
		interval:   5 * time.Minute,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start runs an initial index sync and sweep, then sweeps every interval.
func (j *Janitor) Start(ctx context.Context) {
	j.log.Infof("janitor: starting (every %s)", j.interval)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		if err := j.gen.SyncWithS3(ctx); err != nil {
			j.log.Errorf("janitor: initial sync failed: %v", err)
		}
		j.Sweep(ctx)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-j.stopCh:
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
	j.log.Infof("janitor: stopped")
}

// SweepReport counts what one sweep removed.
type SweepReport struct {
	Workspaces int
	Bans       int
	Videos     int
}

func (j *Janitor) Sweep(ctx context.Context) SweepReport {
	var rep SweepReport
	n, err := media.SweepStale(j.scratchDir, staleWorkspaceAge, j.now())
	if err != nil {
		j.log.Warnf("janitor: sweep %s: %v", j.scratchDir, err)
	}
	rep.Workspaces = n

	if d := j.gen.Disliked(); d != nil {
		if n, err := d.Cleanup(ctx); err != nil {
			j.log.Warnf("janitor: disliked cleanup: %v", err)
		} else {
			rep.Bans = n
		}
	}

	if j.maxAge > 0 {
		n, err := j.gen.DeleteVideosOlderThan(ctx, j.maxAge)
		if err != nil {
			j.log.Errorf("janitor: delete old videos: %v", err)
		}
		rep.Videos = n
	}

	if rep.Workspaces+rep.Bans+rep.Videos > 0 {
		j.log.Infof("janitor: removed %d workspaces, %d expired bans, %d old videos", rep.Workspaces, rep.Bans, rep.Videos)
	}
	return rep
}
