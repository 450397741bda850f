package transcribe

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"shorts-gen/internal/model"
)

func TestParseVerboseAttachesWords(t *testing.T) {
	js := `{
		"language": "english",
		"duration": 4.2,
		"text": "The nature of consciousness. Remains unclear.",
		"segments": [
			{"id": 0, "start": 0.0, "end": 2.0, "text": " The nature of consciousness."},
			{"id": 1, "start": 2.0, "end": 4.2, "text": " Remains unclear."}
		],
		"words": [
			{"word": "The", "start": 0.0, "end": 0.3},
			{"word": "nature", "start": 0.3, "end": 0.8},
			{"word": "of", "start": 0.8, "end": 1.0},
			{"word": "consciousness", "start": 1.0, "end": 2.0},
			{"word": "Remains", "start": 2.0, "end": 2.6},
			{"word": "unclear", "start": 2.6, "end": 4.2}
		]
	}`
	tr, err := ParseVerbose(js)
	if err != nil {
		t.Fatal(err)
	}
	want := model.Transcript{
		Language: "english",
		Segments: []model.Segment{
			{Start: 0, End: 2, Text: "The nature of consciousness.", Words: []model.Word{
				{Text: "The", Start: 0, End: 0.3},
				{Text: "nature", Start: 0.3, End: 0.8},
				{Text: "of", Start: 0.8, End: 1.0},
				{Text: "consciousness", Start: 1.0, End: 2.0},
			}},
			{Start: 2, End: 4.2, Text: "Remains unclear.", Words: []model.Word{
				{Text: "Remains", Start: 2.0, End: 2.6},
				{Text: "unclear", Start: 2.6, End: 4.2},
			}},
		},
	}
	if diff := cmp.Diff(want, tr); diff != "" {
		t.Fatalf("transcript (-want +got):\n%s", diff)
	}
	if !tr.HasWordTimestamps() {
		t.Fatal("expected word timestamps")
	}
}

func TestParseVerboseSegmentsOnly(t *testing.T) {
	tr, err := ParseVerbose(`{"segments": [{"start": 0, "end": 6, "text": "one two three"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Segments) != 1 || tr.HasWordTimestamps() {
		t.Fatalf("transcript = %+v", tr)
	}
}

func TestParseVerboseWordsWithoutSegments(t *testing.T) {
	tr, err := ParseVerbose(`{"words": [{"word": "b", "start": 1, "end": 2}, {"word": "a", "start": 0, "end": 1}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Segments) != 1 || tr.Segments[0].Text != "a b" || tr.Segments[0].End != 2 {
		t.Fatalf("transcript = %+v", tr)
	}
}

func TestParseVerboseTextOnly(t *testing.T) {
	tr, err := ParseVerbose(`{"text": " hello there ", "duration": 3}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Segments) != 1 || tr.Segments[0].Text != "hello there" || tr.Segments[0].End != 3 {
		t.Fatalf("transcript = %+v", tr)
	}
}

func TestParseVerboseInvalid(t *testing.T) {
	if _, err := ParseVerbose(`not json`); err == nil {
		t.Fatal("expected error")
	}
}

func TestSegmentForNearest(t *testing.T) {
	segs := []model.Segment{{Start: 0, End: 1}, {Start: 3, End: 4}}
	if got := segmentFor(segs, 2.8); got != 1 {
		t.Fatalf("2.8 -> %d", got)
	}
	if got := segmentFor(segs, 1.1); got != 0 {
		t.Fatalf("1.1 -> %d", got)
	}
}
