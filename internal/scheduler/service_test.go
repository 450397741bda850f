package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/pipeline"
	"shorts-gen/internal/queue"
	"shorts-gen/internal/s3"
)

type svcFixture struct {
	svc   *Service
	store s3.Client
	q     *queue.Memory
	cfg   internal.Config
	now   time.Time
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	store, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := internal.Config{
		ScratchDir:       t.TempDir(),
		OutputDir:        t.TempDir(),
		VideosJSONKey:    "videos.json",
		ScheduleJSONKey:  "schedule.json",
		PayloadPrefix:    "payload/",
		MaxAge:           72 * time.Hour,
		DailyGenerations: 3,
		PostsChatID:      42,
	}
	log := logging.Discard()
	q := queue.NewMemory(8, log)
	gen := pipeline.NewGenerator(cfg, store, log, pipeline.Deps{})
	svc := NewService(cfg, store, log, gen, q, nil, nil)

	now := time.Date(2024, 5, 10, 15, 0, 0, 0, Location)
	svc.now = func() time.Time { return now }
	svc.topic = func(context.Context) string { return "Stoic calm" }
	return &svcFixture{svc: svc, store: store, q: q, cfg: cfg, now: now}
}

func TestCheckDueEnqueuesDueSlots(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	f.svc.schedule = &DailySchedule{
		Date: dayKey(f.now),
		Entries: []ScheduleEntry{
			{Time: f.now.Add(-2 * time.Hour)},
			{Time: f.now.Add(-time.Minute)},
			{Time: f.now.Add(time.Hour)},
		},
	}

	if err := f.svc.CheckDue(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := f.q.Len(ctx); n != 1 {
		t.Fatalf("queued %d jobs, want 1", n)
	}
	if err := f.svc.CheckDue(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := f.q.Len(ctx); n != 1 {
		t.Fatalf("second check queued again: %d jobs", n)
	}

	stored, err := LoadSchedule(ctx, f.store, f.cfg.ScheduleJSONKey)
	if err != nil || stored == nil {
		t.Fatalf("stored schedule: %v %v", stored, err)
	}
	fired := 0
	for _, e := range stored.Entries {
		if e.Fired {
			fired++
		}
	}
	if fired != 2 {
		t.Fatalf("fired = %d, want 2", fired)
	}

	sched := f.svc.Schedule()
	sched.Entries[2].Fired = true
	if f.svc.Schedule().Entries[2].Fired {
		t.Fatal("Schedule returned shared entries")
	}
}

func TestCheckDueCreatesTodaysSchedule(t *testing.T) {
	f := newSvcFixture(t)
	if err := f.svc.CheckDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	sched := f.svc.Schedule()
	if sched == nil || sched.Date != dayKey(f.now) || len(sched.Entries) != 3 {
		t.Fatalf("schedule = %+v", sched)
	}
}

func TestEnqueuePicksTopicWhenEmpty(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	job, err := f.svc.Enqueue(ctx, "  ", 7, "bot")
	if err != nil {
		t.Fatal(err)
	}
	if job.Topic != "Stoic calm" || job.ChatID != 7 || job.Source != "bot" {
		t.Fatalf("job = %+v", job)
	}
	job, err = f.svc.Enqueue(ctx, "Why we dream", 7, "bot")
	if err != nil {
		t.Fatal(err)
	}
	if job.Topic != "Why we dream" {
		t.Fatalf("topic = %q", job.Topic)
	}
	if n := f.svc.QueueLen(ctx); n != 2 {
		t.Fatalf("len = %d", n)
	}
}

func TestPostsChatIDRoundTrip(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	if err := f.svc.SavePostsChatID(ctx, -100123); err != nil {
		t.Fatal(err)
	}

	other := NewService(f.cfg, f.store, logging.Discard(), f.svc.gen, f.q, nil, nil)
	if err := other.LoadPostsChatID(ctx); err != nil {
		t.Fatal(err)
	}
	if got := other.Config().PostsChatID; got != -100123 {
		t.Fatalf("posts chat id = %d", got)
	}
}

func TestJanitorSweep(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	stale := filepath.Join(f.cfg.ScratchDir, "unit-gen-short-1-abc")
	fresh := filepath.Join(f.cfg.ScratchDir, "unit-gen-short-2-def")
	for _, dir := range []string{stale, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	if err := f.store.PutBytes(ctx, "videos/short-old.mp4", []byte("old"), "video/mp4"); err != nil {
		t.Fatal(err)
	}
	idx := model.VideosIndex{Items: []model.Video{
		{ID: "short-old", VideoKey: "videos/short-old.mp4", CreatedAt: time.Now().Add(-100 * time.Hour)},
		{ID: "short-new", VideoKey: "videos/short-new.mp4", CreatedAt: time.Now()},
	}}
	if err := f.store.WriteJSON(ctx, f.cfg.VideosJSONKey, &idx); err != nil {
		t.Fatal(err)
	}

	rep := f.svc.janitor.Sweep(ctx)
	if rep.Workspaces != 1 || rep.Videos != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale workspace still there: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh workspace removed: %v", err)
	}
	if _, _, err := f.store.GetBytes(ctx, "videos/short-old.mp4"); !s3.IsNotExist(err) {
		t.Fatalf("old video still stored: %v", err)
	}
}

func TestVideoSummary(t *testing.T) {
	got := VideoSummary(&model.Video{
		ID:              "short-1",
		Title:           "On Stillness",
		Topic:           "stillness",
		DurationS:       72.3,
		CaptionStrategy: "ass",
		Degradations:    []string{"bed: none available"},
		Uploads:         map[string]bool{"youtube": true, "telegram": false},
	})
	for _, want := range []string{"On Stillness", "short-1", "72.3s", "Captions: ass", "bed: none available", "telegram ✗, youtube ✓"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestRestoreYouTubeCredentials(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	cfg := f.cfg
	cfg.TokensPrefix = "tokens/"
	cfg.YouTubeClientSecrets = filepath.Join(dir, "client_secret.json")
	cfg.YouTubeToken = filepath.Join(dir, "token.json")

	if err := f.store.PutBytes(ctx, "tokens/token.json", []byte(`{"access_token":"a"}`), "application/json"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.YouTubeClientSecrets, []byte("local"), 0o600); err != nil {
		t.Fatal(err)
	}

	RestoreYouTubeCredentials(ctx, f.store, cfg, logging.Discard())

	got, err := os.ReadFile(cfg.YouTubeToken)
	if err != nil || string(got) != `{"access_token":"a"}` {
		t.Fatalf("token = %q, %v", got, err)
	}
	if got, _ := os.ReadFile(cfg.YouTubeClientSecrets); string(got) != "local" {
		t.Fatalf("existing secrets overwritten: %q", got)
	}
}
