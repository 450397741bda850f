package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/s3"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestPexels(t *testing.T, handler http.Handler) (*Pexels, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := internal.Config{
		PexelsAPIKey:              "key",
		VisualHashIndexKey:        "visual_hashes.json",
		DislikedVisualsJSONKey:    "disliked_visuals.json",
		DislikedVisualGracePeriod: 24 * time.Hour,
	}
	p := NewPexels(cfg, store, logging.Discard())
	p.BaseURL = srv.URL
	p.Validate = nil
	return p, srv
}

func TestParseSearchPrefersHDPortrait(t *testing.T) {
	body := []byte(`{"videos": [
		{"id": 1, "url": "https://pexels.com/v/1", "image": "https://img/1.jpg", "duration": 12, "video_files": [
			{"quality": "sd", "width": 360, "height": 640, "link": "https://v/1-sd.mp4"},
			{"quality": "hd", "width": 1920, "height": 1080, "link": "https://v/1-land.mp4"},
			{"quality": "hd", "width": 1080, "height": 1920, "link": "https://v/1-hd.mp4"}
		]},
		{"id": 2, "duration": 8, "video_files": [
			{"quality": "sd", "width": 240, "height": 426, "link": "https://v/2-small.mp4"},
			{"quality": "sd", "width": 540, "height": 960, "link": "https://v/2-big.mp4"}
		]},
		{"id": 3, "video_files": [{"quality": "hd", "width": 1920, "height": 1080, "link": ""}]}
	]}`)
	got := parseSearch(body)
	want := []Candidate{
		{ID: "1", PageURL: "https://pexels.com/v/1", ImageURL: "https://img/1.jpg", FileURL: "https://v/1-hd.mp4", Quality: "hd", Width: 1080, Height: 1920, Duration: 12},
		{ID: "2", FileURL: "https://v/2-big.mp4", Quality: "sd", Width: 540, Height: 960, Duration: 8},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("candidates (-want +got):\n%s", diff)
	}
}

func TestSearchSendsPortraitQuery(t *testing.T) {
	var gotQuery, gotAuth string
	p, _ := newTestPexels(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"videos": []}`)
	}))
	if _, err := p.Search(context.Background(), "cosmic"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "key" || !strings.Contains(gotQuery, "orientation=portrait") || !strings.Contains(gotQuery, "query=cosmic") {
		t.Fatalf("query=%s auth=%s", gotQuery, gotAuth)
	}
}

func TestFetchSkipsUnusableCandidates(t *testing.T) {
	thumb := testPNG(t)
	clip := bytes.Repeat([]byte{0x42}, 4096)
	mux := http.NewServeMux()
	mux.HandleFunc("/thumb.png", func(w http.ResponseWriter, r *http.Request) { w.Write(thumb) })
	mux.HandleFunc("/tiny.mp4", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("x")) })
	mux.HandleFunc("/good.mp4", func(w http.ResponseWriter, r *http.Request) { w.Write(clip) })
	p, srv := newTestPexels(t, mux)
	ctx := context.Background()

	hash, err := FrameHash(thumb)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Blacklist().Add(ctx, hash); err != nil {
		t.Fatal(err)
	}
	if err := p.Disliked().Add(ctx, "10"); err != nil {
		t.Fatal(err)
	}

	cands := []Candidate{
		{ID: "10", FileURL: srv.URL + "/good.mp4"},
		{ID: "11", ImageURL: srv.URL + "/thumb.png", FileURL: srv.URL + "/good.mp4"},
		{ID: "12", FileURL: srv.URL + "/tiny.mp4"},
		{ID: "13", FileURL: srv.URL + "/missing.mp4"},
		{ID: "14", FileURL: srv.URL + "/good.mp4"},
	}
	dir := t.TempDir()
	got, err := p.Fetch(ctx, dir, cands)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "14" || got.Path != filepath.Join(dir, "visual-14.mp4") {
		t.Fatalf("fetched = %+v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "visual-12.mp4")); !os.IsNotExist(err) {
		t.Fatal("rejected download should be removed")
	}
}

func TestFetchValidatorRejects(t *testing.T) {
	clip := bytes.Repeat([]byte{0x42}, 4096)
	p, srv := newTestPexels(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write(clip) }))
	p.Validate = func(string) error { return errors.New("not a video") }
	_, err := p.Fetch(context.Background(), t.TempDir(), []Candidate{{ID: "1", FileURL: srv.URL + "/a.mp4"}})
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("want ErrNoCandidates, got %v", err)
	}
}

func TestFetchNoCandidates(t *testing.T) {
	p, _ := newTestPexels(t, http.NotFoundHandler())
	if _, err := p.Fetch(context.Background(), t.TempDir(), nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("want ErrNoCandidates, got %v", err)
	}
}

func TestFrameHashStable(t *testing.T) {
	a := testPNG(t)
	h1, err := FrameHash(a)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := FrameHash(a)
	if h1 != h2 {
		t.Fatalf("hash not stable: %d != %d", h1, h2)
	}
	same, err := SimilarFrames(a, a)
	if err != nil || !same {
		t.Fatalf("identical frames should be similar: %v", err)
	}
	if _, err := FrameHash([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDislikedVisualsExpire(t *testing.T) {
	store, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	d := NewDislikedVisuals(store, "disliked_visuals.json", time.Hour, logging.Discard())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if err := d.Add(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if !d.IsDisliked(ctx, "abc") || d.IsDisliked(ctx, "other") {
		t.Fatal("ban not applied")
	}

	now = now.Add(2 * time.Hour)
	if d.IsDisliked(ctx, "abc") {
		t.Fatal("ban should have expired")
	}
	removed, err := d.Cleanup(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("removed %d, %v", removed, err)
	}
	if _, _, err := store.GetBytes(ctx, "disliked_visuals.json"); !s3.IsNotExist(err) {
		t.Fatalf("empty index should be deleted, got %v", err)
	}
}

func TestExtFromURL(t *testing.T) {
	cases := map[string]string{
		"https://v/a.MOV?x=1": ".mov",
		"https://v/a":         ".mp4",
		"https://v/a.jpg":     ".mp4",
	}
	for in, want := range cases {
		if got := extFromURL(in, ".mp4"); got != want {
			t.Errorf("extFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
