package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shorts-gen/internal"
	"shorts-gen/internal/ai"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/s3"
	"shorts-gen/internal/sources"
	"shorts-gen/internal/uploaders"
)

type fakeScript struct {
	script ai.Script
	err    error
}

func (f *fakeScript) Write(ctx context.Context, topic string) (ai.Script, error) {
	return f.script, f.err
}

type fakeSpeech struct{ text string }

func (f *fakeSpeech) Synthesize(ctx context.Context, text, outPath string) error {
	f.text = text
	return os.WriteFile(outPath, []byte("narration"), 0o644)
}

type fakeVisuals struct {
	queries []string
	// usable lists the queries Fetch succeeds for; nil means every query.
	usable map[string]bool
}

func (f *fakeVisuals) Search(ctx context.Context, query string) ([]sources.Candidate, error) {
	f.queries = append(f.queries, query)
	return []sources.Candidate{{ID: "v1", PageURL: "https://pexels.example/v1", FileURL: query}}, nil
}

func (f *fakeVisuals) Fetch(ctx context.Context, dir string, cands []sources.Candidate) (*sources.Fetched, error) {
	if f.usable != nil && !f.usable[cands[0].FileURL] {
		return nil, sources.ErrNoCandidates
	}
	path := filepath.Join(dir, "visual-v1.mp4")
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		return nil, err
	}
	return &sources.Fetched{Candidate: cands[0], Path: path, Hash: 42}, nil
}

type fakeBeds struct{ err error }

func (f *fakeBeds) PickBed(ctx context.Context) (*model.Bed, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Bed{ID: "b1", Title: "Drift"}, nil
}

func (f *fakeBeds) DownloadBed(ctx context.Context, bed *model.Bed, dir string) (string, error) {
	path := filepath.Join(dir, "bed-"+bed.ID+".mp3")
	return path, os.WriteFile(path, []byte("bed"), 0o644)
}

type fakePublisher struct{ reqs []*uploaders.UploadRequest }

func (f *fakePublisher) UploadToConfigured(ctx context.Context, req *uploaders.UploadRequest) (map[string]*uploaders.UploadResult, error) {
	f.reqs = append(f.reqs, req)
	return map[string]*uploaders.UploadResult{
		"telegram": {Success: true, Platform: "telegram"},
		"x":        {Platform: "x", Error: "rate limited"},
	}, nil
}

type genFixture struct {
	gen     *Generator
	store   s3.Client
	cfg     internal.Config
	script  *fakeScript
	visuals *fakeVisuals
	beds    *fakeBeds
	pub     *fakePublisher
	black   *sources.VisualBlacklist
	dislike *sources.DislikedVisuals
}

func testConfig(t *testing.T) internal.Config {
	return internal.Config{
		ScratchDir:             t.TempDir(),
		OutputDir:              t.TempDir(),
		VideosJSONKey:          "videos.json",
		VideosPrefix:           "videos/",
		VisualHashIndexKey:     "visual_hashes.json",
		DislikedVisualsJSONKey: "disliked_visuals.json",
		MaxVideos:              10,
		KeepSRT:                true,
	}
}

func newGenFixture(t *testing.T) *genFixture {
	t.Helper()
	f := newFixture(t)
	f.prober.Set("visual-v1.mp4", 18)
	f.prober.Set("bed-b1.mp3", 30)

	cfg := testConfig(t)
	store, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log := logging.Discard()
	gf := &genFixture{
		store:   store,
		cfg:     cfg,
		script:  &fakeScript{script: ai.Script{Narration: "The nature of consciousness remains unclear.", VisualQuery: "cosmic"}},
		visuals: &fakeVisuals{},
		beds:    &fakeBeds{},
		pub:     &fakePublisher{},
		black:   sources.NewVisualBlacklist(store, cfg.VisualHashIndexKey, log),
		dislike: sources.NewDislikedVisuals(store, cfg.DislikedVisualsJSONKey, 24*time.Hour, log),
	}
	gf.gen = NewGenerator(cfg, store, log, Deps{
		Script:      gf.script,
		Speech:      &fakeSpeech{},
		Visuals:     gf.visuals,
		Beds:        gf.beds,
		Coordinator: f.coord,
		Uploads:     gf.pub,
		Blacklist:   gf.black,
		Disliked:    gf.dislike,
	})
	return gf
}

func (gf *genFixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(gf.cfg.ScratchDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch not cleaned: %v", entries)
	}
}

func TestGenerateOne(t *testing.T) {
	gf := newGenFixture(t)
	ctx := context.Background()

	v, err := gf.gen.GenerateOne(ctx, "The Nature of Time")
	if err != nil {
		t.Fatal(err)
	}
	if v.VisualID != "v1" || v.BedID != "b1" || v.VisualHash != 42 {
		t.Fatalf("video = %+v", v)
	}
	if v.VideoKey != "videos/"+v.ID+".mp4" || v.SubtitleKey != "videos/"+v.ID+".srt" {
		t.Fatalf("keys = %q %q", v.VideoKey, v.SubtitleKey)
	}
	if v.SHA256 == "" || v.CaptionStrategy == "" || v.DurationS != 72.3 {
		t.Fatalf("video = %+v", v)
	}
	if !v.Uploads["telegram"] || v.Uploads["x"] {
		t.Fatalf("uploads = %v", v.Uploads)
	}
	if len(gf.pub.reqs) != 1 || gf.pub.reqs[0].Caption != v.Caption || gf.pub.reqs[0].VideoPath != v.LocalPath {
		t.Fatalf("upload requests = %+v", gf.pub.reqs)
	}

	if _, _, err := gf.store.GetBytes(ctx, v.VideoKey); err != nil {
		t.Fatalf("video not stored: %v", err)
	}
	if _, _, err := gf.store.GetBytes(ctx, v.SubtitleKey); err != nil {
		t.Fatalf("subtitles not stored: %v", err)
	}
	videos, err := gf.gen.ListVideos(ctx)
	if err != nil || len(videos) != 1 || videos[0].ID != v.ID {
		t.Fatalf("index = %v, %v", videos, err)
	}
	if !gf.black.Contains(ctx, 42) {
		t.Fatal("visual hash should be blacklisted after publishing")
	}
	gf.assertScratchEmpty(t)
}

func TestGenerateOneFallsBackToDefaultQuery(t *testing.T) {
	gf := newGenFixture(t)
	gf.visuals.usable = map[string]bool{}
	for _, q := range sources.DefaultQueries {
		gf.visuals.usable[q] = true
	}
	gf.script.script.VisualQuery = "nonexistent footage"

	if _, err := gf.gen.GenerateOne(context.Background(), "Silence"); err != nil {
		t.Fatal(err)
	}
	if len(gf.visuals.queries) != 2 || gf.visuals.queries[0] != "nonexistent footage" {
		t.Fatalf("queries = %v", gf.visuals.queries)
	}
}

func TestGenerateOneStageFailures(t *testing.T) {
	t.Run("script", func(t *testing.T) {
		gf := newGenFixture(t)
		gf.script.err = errors.New("quota exceeded")
		_, err := gf.gen.GenerateOne(context.Background(), "x")
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StageScript {
			t.Fatalf("err = %v", err)
		}
		gf.assertScratchEmpty(t)
	})
	t.Run("visual", func(t *testing.T) {
		gf := newGenFixture(t)
		gf.visuals.usable = map[string]bool{}
		_, err := gf.gen.GenerateOne(context.Background(), "x")
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StageVisualSearch || !errors.Is(err, sources.ErrNoCandidates) {
			t.Fatalf("err = %v", err)
		}
		videos, _ := gf.gen.ListVideos(context.Background())
		if len(videos) != 0 {
			t.Fatalf("nothing should be indexed, got %v", videos)
		}
		gf.assertScratchEmpty(t)
	})
}

func TestGenerateOneWithoutBed(t *testing.T) {
	gf := newGenFixture(t)
	gf.beds.err = errors.New("no beds available")
	v, err := gf.gen.GenerateOne(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if v.BedID != "" {
		t.Fatalf("bed = %q", v.BedID)
	}
	if len(v.Degradations) == 0 || !strings.Contains(v.Degradations[0], "no background music") {
		t.Fatalf("degradations = %v", v.Degradations)
	}
}

func newIndexGenerator(t *testing.T) (*Generator, s3.Client) {
	t.Helper()
	cfg := testConfig(t)
	store, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log := logging.Discard()
	return NewGenerator(cfg, store, log, Deps{
		Disliked: sources.NewDislikedVisuals(store, cfg.DislikedVisualsJSONKey, 24*time.Hour, log),
	}), store
}

func storeVideo(t *testing.T, store s3.Client, v model.Video) model.Video {
	t.Helper()
	if v.VideoKey == "" {
		v.VideoKey = "videos/" + v.ID + ".mp4"
	}
	if err := store.PutBytes(context.Background(), v.VideoKey, []byte(v.ID), "video/mp4"); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestAddToIndexEvictsOldest(t *testing.T) {
	g, store := newIndexGenerator(t)
	g.cfg.MaxVideos = 2
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		v := storeVideo(t, store, model.Video{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		if err := g.addToIndex(ctx, v); err != nil {
			t.Fatal(err)
		}
	}
	videos, err := g.ListVideos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 || videos[0].ID != "c" || videos[1].ID != "b" {
		t.Fatalf("videos = %v", videos)
	}
	if _, _, err := store.GetBytes(ctx, "videos/a.mp4"); !s3.IsNotExist(err) {
		t.Fatalf("evicted video should be deleted, err = %v", err)
	}
}

func TestDeleteVideos(t *testing.T) {
	g, store := newIndexGenerator(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	for _, v := range []model.Video{
		{ID: "old", CreatedAt: now.Add(-100 * time.Hour)},
		{ID: "mid", CreatedAt: now.Add(-10 * time.Hour)},
		{ID: "new", CreatedAt: now.Add(-time.Hour)},
	} {
		if err := g.addToIndex(ctx, storeVideo(t, store, v)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := g.DeleteVideosOlderThan(ctx, 72*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("removed %d, err %v", n, err)
	}
	if err := g.DeleteVideo(ctx, "mid"); err != nil {
		t.Fatal(err)
	}
	if err := g.DeleteVideo(ctx, "mid"); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	videos, _ := g.ListVideos(ctx)
	if len(videos) != 1 || videos[0].ID != "new" {
		t.Fatalf("videos = %v", videos)
	}
	for _, key := range []string{"videos/old.mp4", "videos/mid.mp4"} {
		if _, _, err := store.GetBytes(ctx, key); !s3.IsNotExist(err) {
			t.Fatalf("%s should be deleted, err = %v", key, err)
		}
	}
}

func TestDislike(t *testing.T) {
	g, store := newIndexGenerator(t)
	ctx := context.Background()
	if err := g.addToIndex(ctx, storeVideo(t, store, model.Video{ID: "s1", VisualID: "pexels-9", CreatedAt: time.Now()})); err != nil {
		t.Fatal(err)
	}
	if err := g.addToIndex(ctx, storeVideo(t, store, model.Video{ID: "s2", CreatedAt: time.Now()})); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Dislike(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if !g.deps.Disliked.IsDisliked(ctx, "pexels-9") {
		t.Fatal("visual should be disliked")
	}
	if _, err := g.Dislike(ctx, "s2"); err == nil {
		t.Fatal("video without visual should fail")
	}
	if _, err := g.Dislike(ctx, "nope"); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncWithS3(t *testing.T) {
	g, store := newIndexGenerator(t)
	ctx := context.Background()
	now := time.Now()

	keep := storeVideo(t, store, model.Video{ID: "keep", SHA256: "aa", CreatedAt: now})
	dup := storeVideo(t, store, model.Video{ID: "dup", SHA256: "aa", CreatedAt: now.Add(-time.Minute)})
	gone := model.Video{ID: "gone", VideoKey: "videos/gone.mp4", CreatedAt: now}
	idx := model.VideosIndex{Items: []model.Video{keep, dup, gone}}
	if err := store.WriteJSON(ctx, "videos.json", &idx); err != nil {
		t.Fatal(err)
	}
	if err := store.PutBytes(ctx, "videos/stray.mp4", []byte("x"), "video/mp4"); err != nil {
		t.Fatal(err)
	}

	if err := g.SyncWithS3(ctx); err != nil {
		t.Fatal(err)
	}
	videos, _ := g.ListVideos(ctx)
	if len(videos) != 1 || videos[0].ID != "keep" {
		t.Fatalf("videos = %v", videos)
	}
	objects, err := store.List(ctx, "videos/")
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 1 || objects[0].Key != "videos/keep.mp4" {
		t.Fatalf("objects = %v", objects)
	}
}

// failingReads makes ReadJSON fail for one key while failing is set.
type failingReads struct {
	s3.Client
	key     string
	failing bool
}

func (f *failingReads) ReadJSON(ctx context.Context, key string, out any) (bool, error) {
	if f.failing && key == f.key {
		return false, errors.New("503 SlowDown")
	}
	return f.Client.ReadJSON(ctx, key, out)
}

func TestAddToIndexKeepsIndexOnReadError(t *testing.T) {
	cfg := testConfig(t)
	local, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := &failingReads{Client: local, key: cfg.VideosJSONKey}
	g := NewGenerator(cfg, store, logging.Discard(), Deps{})
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		v := storeVideo(t, store, model.Video{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		if err := g.addToIndex(ctx, v); err != nil {
			t.Fatal(err)
		}
	}

	store.failing = true
	d := storeVideo(t, store, model.Video{ID: "d", CreatedAt: base.Add(4 * time.Hour)})
	if err := g.addToIndex(ctx, d); err == nil {
		t.Fatal("expected read error")
	}
	store.failing = false

	videos, err := g.ListVideos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	if strings.Join(ids, ",") != "c,b,a" {
		t.Fatalf("index = %v, want c,b,a", ids)
	}
}
