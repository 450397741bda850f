package sources

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/vitali-fedulov/imagehash2"
	"github.com/vitali-fedulov/images4"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/s3"
)

const (
	// imagehash2 parameters for hash table pre-filtering
	hashNumBuckets = 4
	hashEpsilon    = 0.25

	blacklistTTL = 5 * time.Minute
)

// FrameHash computes a perceptual hash of a still frame (a clip's preview
// image). Near-identical frames hash to the same value.
func FrameHash(imageData []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	icon := images4.Icon(img)
	return imagehash2.CentralHash9(icon, hashEpsilon, hashNumBuckets), nil
}

// SimilarFrames reports whether two frames look alike.
func SimilarFrames(a, b []byte) (bool, error) {
	imgA, _, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return false, fmt.Errorf("decode image1: %w", err)
	}
	imgB, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return false, fmt.Errorf("decode image2: %w", err)
	}
	return images4.Similar(images4.Icon(imgA), images4.Icon(imgB)), nil
}

// VisualBlacklist is the set of frame hashes of clips already published,
// stored under one JSON key and cached in memory.
type VisualBlacklist struct {
	s3  s3.Client
	key string
	log *logging.Logger

	mu     sync.RWMutex
	cached *model.VisualHashIndex
	exp    time.Time
}

func NewVisualBlacklist(s3c s3.Client, key string, log *logging.Logger) *VisualBlacklist {
	return &VisualBlacklist{s3: s3c, key: key, log: log}
}

// Contains reports whether hash was used before. Read errors are permissive.
func (b *VisualBlacklist) Contains(ctx context.Context, hash uint64) bool {
	if hash == 0 {
		return false
	}
	b.mu.RLock()
	cached, exp := b.cached, b.exp
	b.mu.RUnlock()

	if cached == nil || time.Now().After(exp) {
		var index model.VisualHashIndex
		if _, err := b.s3.ReadJSON(ctx, b.key, &index); err != nil {
			b.log.Warnf("visual_hash: failed to read blacklist: %v", err)
			return false
		}
		b.mu.Lock()
		b.cached = &index
		b.exp = time.Now().Add(blacklistTTL)
		b.mu.Unlock()
		cached = &index
	}
	return lo.Contains(cached.Hashes, hash)
}

// Add records hash and invalidates the cache.
func (b *VisualBlacklist) Add(ctx context.Context, hash uint64) error {
	if hash == 0 {
		return nil
	}
	var index model.VisualHashIndex
	if _, err := b.s3.ReadJSON(ctx, b.key, &index); err != nil {
		return fmt.Errorf("read %s: %w", b.key, err)
	}
	if lo.Contains(index.Hashes, hash) {
		return nil
	}
	index.Hashes = append(index.Hashes, hash)
	index.UpdatedAt = time.Now()
	if err := b.s3.WriteJSON(ctx, b.key, &index); err != nil {
		return err
	}
	b.log.Infof("visual_hash: added hash %d to blacklist (total: %d)", hash, len(index.Hashes))
	b.mu.Lock()
	b.cached = nil
	b.mu.Unlock()
	return nil
}
