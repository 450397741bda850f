package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/s3"
)

// DislikedVisuals bans stock clips from reuse for a grace period.
type DislikedVisuals struct {
	s3    s3.Client
	key   string
	grace time.Duration
	log   *logging.Logger
	now   func() time.Time
}

func NewDislikedVisuals(s3c s3.Client, key string, grace time.Duration, log *logging.Logger) *DislikedVisuals {
	return &DislikedVisuals{s3: s3c, key: key, grace: grace, log: log, now: time.Now}
}

func (d *DislikedVisuals) load(ctx context.Context) (model.DislikedVisualIndex, error) {
	var idx model.DislikedVisualIndex
	if _, err := d.s3.ReadJSON(ctx, d.key, &idx); err != nil {
		return idx, fmt.Errorf("failed to read disliked visuals: %w", err)
	}
	return idx, nil
}

// Add bans visualID. Banning an already banned clip is a no-op.
func (d *DislikedVisuals) Add(ctx context.Context, visualID string) error {
	if visualID == "" {
		return nil
	}
	idx, err := d.load(ctx)
	if err != nil {
		d.log.Warnf("disliked: %v", err)
		return err
	}
	now := d.now()
	if idx.IsBlacklisted(visualID, now) {
		d.log.Infof("disliked: visual %s already blacklisted, skipping", visualID)
		return nil
	}
	idx.Items = lo.Reject(idx.Items, func(it model.DislikedVisual, _ int) bool { return it.VisualID == visualID })
	idx.Items = append(idx.Items, model.DislikedVisual{
		VisualID:   visualID,
		Duration:   int64(d.grace.Seconds()),
		DislikedAt: now,
	})
	idx.UpdatedAt = now
	if err := d.s3.WriteJSON(ctx, d.key, &idx); err != nil {
		d.log.Errorf("disliked: failed to update blacklist: %v", err)
		return fmt.Errorf("failed to update disliked visuals: %w", err)
	}
	d.log.Infof("disliked: added visual %s to blacklist for %.0f hours", visualID, d.grace.Hours())
	return nil
}

// IsDisliked reports whether visualID is currently banned. Read errors are permissive.
func (d *DislikedVisuals) IsDisliked(ctx context.Context, visualID string) bool {
	idx, err := d.load(ctx)
	if err != nil {
		return false
	}
	return idx.IsBlacklisted(visualID, d.now())
}

// Cleanup drops expired bans and deletes the index once it is empty.
func (d *DislikedVisuals) Cleanup(ctx context.Context) (int, error) {
	var idx model.DislikedVisualIndex
	found, err := d.s3.ReadJSON(ctx, d.key, &idx)
	if err != nil || !found {
		return 0, nil
	}
	removed := idx.CleanupExpired(d.now())
	if removed == 0 {
		return 0, nil
	}
	d.log.Infof("disliked: removed %d expired entries (%d left)", removed, len(idx.Items))
	if len(idx.Items) == 0 {
		if err := d.s3.Delete(ctx, d.key); err != nil {
			d.log.Warnf("disliked: failed to delete empty blacklist: %v", err)
		}
		return removed, nil
	}
	if err := d.s3.WriteJSON(ctx, d.key, &idx); err != nil {
		return removed, fmt.Errorf("failed to save disliked visuals: %w", err)
	}
	return removed, nil
}
