package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/media"
	"shorts-gen/internal/media/mediatest"
	"shorts-gen/internal/model"
)

func TestBedLoopCount(t *testing.T) {
	cases := []struct {
		primary, bed float64
		want         int
	}{
		{72.3, 30, 3},
		{60, 30, 2},
		{10, 30, 1},
		{30, 30, 1},
		{10.1, 5, 3},
	}
	for _, tc := range cases {
		got, err := BedLoopCount(tc.primary, tc.bed)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("BedLoopCount(%v, %v) = %d, want %d", tc.primary, tc.bed, got, tc.want)
		}
	}
	if _, err := BedLoopCount(10, 0); err == nil {
		t.Fatal("expected error for zero bed")
	}
}

func TestMixFilter(t *testing.T) {
	got := mixFilter(72.3, 20)
	want := "[1:a]volume=-20dB,atrim=duration=72.3,asetpts=PTS-STARTPTS[bed];" +
		"[0:a][bed]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[mix]"
	if got != want {
		t.Fatalf("mixFilter:\n got %s\nwant %s", got, want)
	}
}

type mixFixture struct {
	mixer   *Mixer
	runner  *mediatest.Runner
	prober  *mediatest.Prober
	ws      *media.Workspace
	primary model.MediaAsset
	bedPath string
}

func newMixFixture(t *testing.T) *mixFixture {
	t.Helper()
	dir := t.TempDir()
	ws, err := media.NewWorkspace(t.TempDir(), "mix")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	narration := filepath.Join(dir, "narration.mp3")
	bed := filepath.Join(dir, "bed.mp3")
	for _, p := range []string{narration, bed} {
		if err := mediatest.Touch(p); err != nil {
			t.Fatal(err)
		}
	}
	prober := mediatest.NewProber(map[string]float64{"narration.mp3": 72.3, "bed.mp3": 30})
	runner := &mediatest.Runner{}
	return &mixFixture{
		mixer:   NewMixer(runner, prober, logging.Discard()),
		runner:  runner,
		prober:  prober,
		ws:      ws,
		primary: model.MediaAsset{Path: narration, Kind: model.MediaAudio, Duration: 72.3},
		bedPath: bed,
	}
}

func TestMixWithoutBedCopiesNarration(t *testing.T) {
	f := newMixFixture(t)
	res, err := f.mixer.Mix(context.Background(), f.ws, model.MixSpec{Primary: f.primary, AttenuationDB: 20})
	if err != nil {
		t.Fatal(err)
	}
	if res.BedUsed || f.runner.CallCount() != 0 {
		t.Fatalf("no bed should mean no ffmpeg: %+v", res)
	}
	if res.Asset.Duration != f.primary.Duration {
		t.Fatalf("duration %v, want %v", res.Asset.Duration, f.primary.Duration)
	}
	got, _ := os.ReadFile(res.Asset.Path)
	want, _ := os.ReadFile(f.primary.Path)
	if string(got) != string(want) {
		t.Fatal("narration not copied verbatim")
	}
}

func TestMixLoopsShortBed(t *testing.T) {
	f := newMixFixture(t)
	spec := model.MixSpec{
		Primary:       f.primary,
		Bed:           &model.MediaAsset{Path: f.bedPath, Kind: model.MediaAudio},
		AttenuationDB: 20,
	}
	res, err := f.mixer.Mix(context.Background(), f.ws, spec)
	if err != nil {
		t.Fatal(err)
	}
	if !res.BedUsed || res.BedLoops != 3 {
		t.Fatalf("result = %+v, want bed used with 3 loops", res)
	}
	call := f.runner.Joined(0)
	for _, want := range []string{"-f concat", "volume=-20dB", "atrim=duration=72.3", "-t 72.3", "duration=first"} {
		if !strings.Contains(call, want) {
			t.Errorf("mix call missing %q: %s", want, call)
		}
	}
	list, err := os.ReadFile(f.ws.Path("bed_concat.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(list), "file '"); n != 3 {
		t.Fatalf("bed list has %d entries, want 3", n)
	}
	if res.Asset.Duration != f.primary.Duration {
		t.Fatalf("mixed duration %v, want %v", res.Asset.Duration, f.primary.Duration)
	}
}

func TestMixLongBedIsNotLooped(t *testing.T) {
	f := newMixFixture(t)
	f.prober.Set("bed.mp3", 200)
	spec := model.MixSpec{Primary: f.primary, Bed: &model.MediaAsset{Path: f.bedPath}, AttenuationDB: 20}
	res, err := f.mixer.Mix(context.Background(), f.ws, spec)
	if err != nil {
		t.Fatal(err)
	}
	if res.BedLoops != 1 || strings.Contains(f.runner.Joined(0), "concat") {
		t.Fatalf("long bed should be used directly: %+v %s", res, f.runner.Joined(0))
	}
}

func TestMixDegradesOnBedFailure(t *testing.T) {
	cases := map[string]func(f *mixFixture){
		"missing bed": func(f *mixFixture) { os.Remove(f.bedPath) },
		"zero bed":    func(f *mixFixture) { f.prober.Set("bed.mp3", 0) },
		"ffmpeg fails": func(f *mixFixture) {
			f.runner.Fail = func([]string) error { return errors.New("boom") }
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			f := newMixFixture(t)
			setup(f)
			spec := model.MixSpec{Primary: f.primary, Bed: &model.MediaAsset{Path: f.bedPath}, AttenuationDB: 20}
			res, err := f.mixer.Mix(context.Background(), f.ws, spec)
			if err != nil {
				t.Fatalf("bed failure must not be fatal: %v", err)
			}
			if res.BedUsed || len(res.Diagnostics) != 1 {
				t.Fatalf("want degraded result with one diagnostic, got %+v", res)
			}
			if res.Asset.Duration != f.primary.Duration {
				t.Fatalf("duration %v, want %v", res.Asset.Duration, f.primary.Duration)
			}
		})
	}
}

func TestMixFailsWhenNarrationUnreadable(t *testing.T) {
	f := newMixFixture(t)
	os.Remove(f.primary.Path)
	if _, err := f.mixer.Mix(context.Background(), f.ws, model.MixSpec{Primary: f.primary}); err == nil {
		t.Fatal("expected error when narration cannot be copied")
	}
}
