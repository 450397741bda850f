package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shorts-gen/internal"
	"shorts-gen/internal/s3"
)

func TestParseTopics(t *testing.T) {
	got := parseTopics([]byte("# ideas\nThe art of letting go\n\n  Why silence heals  \r\n#skip\n"))
	want := []string{"The art of letting go", "Why silence heals"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("topics mismatch (-want +got):\n%s", diff)
	}
}

func TestPickTopicSources(t *testing.T) {
	ctx := context.Background()
	store, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(t.TempDir(), "topics.txt")
	cfg := internal.Config{PayloadPrefix: "payload/", TopicsFile: file}

	if got := PickTopic(ctx, store, cfg); got != DefaultTopic {
		t.Fatalf("no sources: %q", got)
	}

	if err := os.WriteFile(file, []byte("From disk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := PickTopic(ctx, store, cfg); got != "From disk" {
		t.Fatalf("file: %q", got)
	}

	if err := store.PutBytes(ctx, "payload/topics.txt", []byte("From the store\n"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if got := PickTopic(ctx, store, cfg); got != "From the store" {
		t.Fatalf("store: %q", got)
	}
}
