package uploaders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
)

func TestRemoveShortsHashtag(t *testing.T) {
	cases := map[string]string{
		"":                             "",
		"#shorts":                      "",
		"Deep dive #Shorts #wisdom":    "Deep dive #wisdom",
		"#shorts first then words":     "first then words",
		"keep #shortstory intact":      "keep #shortstory intact",
		"spaces   #shorts    collapse": "spaces collapse",
	}
	for in, want := range cases {
		if got := RemoveShortsHashtag(in); got != want {
			t.Errorf("RemoveShortsHashtag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVideoTags(t *testing.T) {
	got := VideoTags([]string{"#wisdom", " #shorts ", "#", "zen"})
	want := []string{"wisdom", "shorts", "zen", "philosophy", "spirituality"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
}

func TestLoadCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	data := `[{"name":"sessionid","value":"abc","httpOnly":true},{"name":"","value":"x"},{"name":"tt","value":"1","domain":"www.tiktok.com","path":"/upload"}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCookies(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Cookie{
		{Name: "sessionid", Value: "abc", Domain: ".tiktok.com", Path: "/", HTTPOnly: true},
		{Name: "tt", Value: "1", Domain: "www.tiktok.com", Path: "/upload"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cookies (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCookies(path); err == nil {
		t.Fatal("empty cookie file should fail")
	}
}

func TestTelegramUpload(t *testing.T) {
	video := filepath.Join(t.TempDir(), "short.mp4")
	if err := os.WriteFile(video, []byte("fake mp4 bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotChat, gotCaption, gotVideo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendVideo" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotChat = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")
		f, _, err := r.FormFile("video")
		if err == nil {
			b, _ := io.ReadAll(f)
			gotVideo = string(b)
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":42}}`)
	}))
	defer srv.Close()

	up := NewTelegramUploader("TOKEN", "-100")
	up.BaseURL = srv.URL
	res, err := up.Upload(context.Background(), &UploadRequest{VideoPath: video, Caption: "hello #wisdom"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Details["message_id"] != "42" {
		t.Fatalf("result = %+v", res)
	}
	if gotChat != "-100" || gotCaption != "hello #wisdom" || gotVideo != "fake mp4 bytes" {
		t.Fatalf("chat=%q caption=%q video=%q", gotChat, gotCaption, gotVideo)
	}
}

func TestTelegramUploadError(t *testing.T) {
	video := filepath.Join(t.TempDir(), "short.mp4")
	if err := os.WriteFile(video, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"chat not found"}`)
	}))
	defer srv.Close()

	up := NewTelegramUploader("TOKEN", "-1")
	up.BaseURL = srv.URL
	res, err := up.Upload(context.Background(), &UploadRequest{VideoPath: video})
	if err == nil || res.Success || !strings.Contains(res.Error, "chat not found") {
		t.Fatalf("res=%+v err=%v", res, err)
	}

	if _, err := NewTelegramUploader("TOKEN", "").Upload(context.Background(), &UploadRequest{VideoPath: video}); err == nil {
		t.Fatal("missing chat id should fail")
	}
}

func TestXUpload(t *testing.T) {
	video := filepath.Join(t.TempDir(), "short.mp4")
	if err := os.WriteFile(video, []byte(strings.Repeat("v", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	var appends atomic.Int32
	var tweet string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/2/media/upload/initialize":
			fmt.Fprint(w, `{"data":{"id":"m1"}}`)
		case r.URL.Path == "/2/media/upload/m1/append":
			appends.Add(1)
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/2/media/upload/m1/finalize":
			fmt.Fprint(w, `{"data":{"id":"m1","processing_info":{"state":"succeeded"}}}`)
		case r.URL.Path == "/2/tweets":
			b, _ := io.ReadAll(r.Body)
			tweet = string(b)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"data":{"id":"777","text":"x"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	up := &XUploader{BaseURL: srv.URL, httpClient: srv.Client(), log: logging.Discard()}
	res, err := up.Upload(context.Background(), &UploadRequest{VideoPath: video, Caption: "Deep #shorts #wisdom"})
	if err != nil {
		t.Fatal(err)
	}
	if res.URL != "https://x.com/i/web/status/777" || appends.Load() != 1 {
		t.Fatalf("res=%+v appends=%d", res, appends.Load())
	}
	if !strings.Contains(tweet, `"text":"Deep #wisdom"`) || !strings.Contains(tweet, `"m1"`) {
		t.Fatalf("tweet body = %s", tweet)
	}
}

type fakeUploader struct {
	name  string
	err   error
	calls atomic.Int32
}

func (f *fakeUploader) Platform() string { return f.name }

func (f *fakeUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return failed(f.name, f.err.Error(), f.err)
	}
	return &UploadResult{Success: true, Platform: f.name, URL: "https://" + f.name + "/1"}, nil
}

func TestManagerUploadToSelected(t *testing.T) {
	m := NewManager(internal.Config{YouTubeClientSecrets: filepath.Join(t.TempDir(), "missing.json")}, logging.Discard())
	if got := m.AvailablePlatforms(); len(got) != 0 {
		t.Fatalf("no credentials should register nothing, got %v", got)
	}
	ok := &fakeUploader{name: "ok"}
	bad := &fakeUploader{name: "bad", err: errors.New("boom")}
	m.AddUploader("ok", ok)
	m.AddUploader("bad", bad)

	results := m.UploadToSelected(context.Background(), []string{"ok", "bad", "missing"}, &UploadRequest{})
	if len(results) != 3 {
		t.Fatalf("results = %v", results)
	}
	if !results["ok"].Success || results["ok"].URL != "https://ok/1" {
		t.Fatalf("ok = %+v", results["ok"])
	}
	if results["bad"].Success || results["bad"].Error != "boom" {
		t.Fatalf("bad = %+v", results["bad"])
	}
	if results["missing"].Success || results["missing"].Error == "" {
		t.Fatalf("missing = %+v", results["missing"])
	}
	if ok.calls.Load() != 1 || bad.calls.Load() != 1 {
		t.Fatal("each uploader should run once")
	}
}

func TestManagerUploadToConfigured(t *testing.T) {
	m := NewManager(internal.Config{}, logging.Discard())
	if _, err := m.UploadToConfigured(context.Background(), &UploadRequest{}); err == nil {
		t.Fatal("no platforms should fail")
	}

	a, b := &fakeUploader{name: "a"}, &fakeUploader{name: "b"}
	m.AddUploader("a", a)
	m.AddUploader("b", b)
	res, err := m.UploadToConfigured(context.Background(), &UploadRequest{})
	if err != nil || len(res) != 2 {
		t.Fatalf("res=%v err=%v", res, err)
	}

	m.selected = []string{"b"}
	res, err = m.UploadToConfigured(context.Background(), &UploadRequest{})
	if err != nil || len(res) != 1 || a.calls.Load() != 1 || b.calls.Load() != 2 {
		t.Fatalf("res=%v a=%d b=%d", res, a.calls.Load(), b.calls.Load())
	}
}
