package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/s3"
)

type failingReads struct {
	s3.Client
	failing bool
}

func (f *failingReads) ReadJSON(ctx context.Context, key string, out any) (bool, error) {
	if f.failing {
		return false, errors.New("503 SlowDown")
	}
	return f.Client.ReadJSON(ctx, key, out)
}

func TestVisualBlacklistAddKeepsHashesOnReadError(t *testing.T) {
	local, err := s3.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := &failingReads{Client: local}
	b := NewVisualBlacklist(store, "visual_hashes.json", logging.Discard())
	ctx := context.Background()
	for _, h := range []uint64{11, 22} {
		if err := b.Add(ctx, h); err != nil {
			t.Fatal(err)
		}
	}

	store.failing = true
	if err := b.Add(ctx, 33); err == nil {
		t.Fatal("expected read error")
	}
	store.failing = false

	var idx model.VisualHashIndex
	if _, err := local.ReadJSON(ctx, "visual_hashes.json", &idx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint64{11, 22}, idx.Hashes); diff != "" {
		t.Fatalf("hashes (-want +got):\n%s", diff)
	}
	if !b.Contains(ctx, 22) || b.Contains(ctx, 33) {
		t.Fatal("blacklist contents changed after failed add")
	}
}
