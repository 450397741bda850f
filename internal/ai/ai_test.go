package ai

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/samber/lo"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
)

func TestParseScript(t *testing.T) {
	cases := []struct {
		name, raw, narration, query string
		wantErr                     bool
	}{
		{"json", `{"narration": " The void sings. ", "visual_query": "cosmic"}`, "The void sings.", "cosmic", false},
		{"fenced", "```json\n{\"narration\": \"Breathe.\", \"visual_query\": \"nature\"}\n```", "Breathe.", "nature", false},
		{"plain text", "  Consider the wave.  ", "Consider the wave.", "", false},
		{"empty", "   ", "", "", true},
		{"no narration", `{"visual_query": "space"}`, "", "", true},
		{"broken json", `{"narration": `, "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseScript(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", s)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if s.Narration != tc.narration || s.VisualQuery != tc.query {
				t.Fatalf("script = %+v", s)
			}
		})
	}
}

func TestTrimCaption(t *testing.T) {
	main := strings.Repeat("x", 100)
	tags := []string{"#one", "#two", "#three", "#four", "#five", "#six", "#seven", "#eight", "#nine"}
	full, kept := TrimCaption(main, tags, 150, 6)
	if len(kept) < 6 || len(kept) == len(tags) {
		t.Fatalf("kept %d tags", len(kept))
	}
	if len(full) > 150 && len(kept) > 6 {
		t.Fatalf("caption too long with droppable tags: %d", len(full))
	}

	long := strings.Repeat("y", 200)
	full, kept = TrimCaption(long, tags, 150, 6)
	if len(kept) != 6 || !strings.HasPrefix(full, long) {
		t.Fatalf("should stop at six tags: %d", len(kept))
	}

	full, kept = TrimCaption("short", tags[:2], 150, 6)
	if full != "short #one #two" || len(kept) != 2 {
		t.Fatalf("caption = %q", full)
	}
}

func TestBuildMetadata(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		m := BuildMetadata("The Nature of Time", rand.New(rand.NewPCG(seed, 7)))
		if !strings.HasSuffix(m.Title, " #Shorts") || !strings.Contains(m.Title, "The Nature of Time") {
			t.Fatalf("title = %q", m.Title)
		}
		if !strings.Contains(m.Caption, "the nature of time") {
			t.Fatalf("caption = %q", m.Caption)
		}
		if len([]rune(m.Caption)) > tiktokCaptionLimit && len(m.Hashtags) > minHashtags {
			t.Fatalf("caption over limit: %q", m.Caption)
		}
		if len(lo.Uniq(m.Hashtags)) != len(m.Hashtags) {
			t.Fatalf("duplicate hashtags: %v", m.Hashtags)
		}
		if !strings.Contains(m.Description, "the nature of time") {
			t.Fatalf("description = %q", m.Description)
		}
	}
}

func TestBuildMetadataDeterministic(t *testing.T) {
	a := BuildMetadata("Silence", rand.New(rand.NewPCG(1, 2)))
	b := BuildMetadata("Silence", rand.New(rand.NewPCG(1, 2)))
	if a.Caption != b.Caption || a.Title != b.Title {
		t.Fatal("same seed should give the same metadata")
	}
}

func TestNewScriptWriterRequiresKey(t *testing.T) {
	log := logging.Discard()
	if _, err := NewScriptWriter(internal.Config{ScriptProvider: "gemini"}, log); err == nil {
		t.Fatal("gemini without key should fail")
	}
	if _, err := NewScriptWriter(internal.Config{ScriptProvider: "openai"}, log); err == nil {
		t.Fatal("openai without key should fail")
	}
	if _, err := NewScriptWriter(internal.Config{ScriptProvider: "claude", GeminiAPIKey: "k"}, log); err == nil {
		t.Fatal("unknown provider should fail")
	}
	w, err := NewScriptWriter(internal.Config{ScriptProvider: "openai", OpenAIAPIKey: "k"}, log)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.(*OpenAIWriter); !ok {
		t.Fatalf("writer = %T", w)
	}
}
