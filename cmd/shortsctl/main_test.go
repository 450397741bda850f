package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shorts-gen/internal/model"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTranscriptOwnFormat(t *testing.T) {
	path := writeTemp(t, "t.json", `{"segments":[{"start":0,"end":1,"text":"hi there","words":[{"word":"hi","start":0,"end":0.4},{"word":"there","start":0.5,"end":1}]}]}`)
	tr, err := loadTranscript(path)
	if err != nil {
		t.Fatal(err)
	}
	want := model.Transcript{Segments: []model.Segment{{
		Start: 0, End: 1, Text: "hi there",
		Words: []model.Word{{Text: "hi", Start: 0, End: 0.4}, {Text: "there", Start: 0.5, End: 1}},
	}}}
	if diff := cmp.Diff(want, tr); diff != "" {
		t.Fatalf("transcript (-want +got):\n%s", diff)
	}
}

func TestLoadTranscriptWhisperVerbose(t *testing.T) {
	path := writeTemp(t, "v.json", `{"language":"english","segments":[{"start":0,"end":2,"text":" Be still."}],"words":[{"word":"Be","start":0,"end":0.5},{"word":"still.","start":0.6,"end":2}]}`)
	tr, err := loadTranscript(path)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.HasWordTimestamps() {
		t.Fatalf("expected word timing, got %+v", tr)
	}
	if tr.Segments[0].Text != "Be still." {
		t.Fatalf("segment text = %q", tr.Segments[0].Text)
	}
}

func TestLoadTranscriptInvalid(t *testing.T) {
	if _, err := loadTranscript(writeTemp(t, "bad.json", "not json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestTranscriptFromSRT(t *testing.T) {
	path := writeTemp(t, "c.srt", "1\n00:00:00,000 --> 00:00:01,500\nfirst line\nsecond line\n\n2\n00:00:01,500 --> 00:00:03,000\nlast\n")
	tr, err := transcriptFromSRT(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Segment{
		{Start: 0, End: 1.5, Text: "first line second line"},
		{Start: 1.5, End: 3, Text: "last"},
	}
	if diff := cmp.Diff(want, tr.Segments); diff != "" {
		t.Fatalf("segments (-want +got):\n%s", diff)
	}
	if tr.HasWordTimestamps() {
		t.Fatal("SRT transcript should carry no word timing")
	}
}
