package model

import "time"

// DislikedVisual is a stock clip a user disliked; it is skipped until the ban expires.
type DislikedVisual struct {
	VisualID   string    `json:"visual_id"`
	Duration   int64     `json:"duration_s"`
	DislikedAt time.Time `json:"disliked_at"`
}

type DislikedVisualIndex struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Items     []DislikedVisual `json:"items"`
}

func (d DislikedVisual) expiresAt() time.Time {
	return d.DislikedAt.Add(time.Duration(d.Duration) * time.Second)
}

// IsBlacklisted reports whether visualID is still banned at now.
func (idx *DislikedVisualIndex) IsBlacklisted(visualID string, now time.Time) bool {
	if idx == nil {
		return false
	}
	for _, item := range idx.Items {
		if item.VisualID == visualID && now.Before(item.expiresAt()) {
			return true
		}
	}
	return false
}

// CleanupExpired drops entries whose ban has ended and reports how many were removed.
func (idx *DislikedVisualIndex) CleanupExpired(now time.Time) int {
	if idx == nil {
		return 0
	}
	kept := idx.Items[:0]
	for _, item := range idx.Items {
		if now.Before(item.expiresAt()) {
			kept = append(kept, item)
		}
	}
	removed := len(idx.Items) - len(kept)
	idx.Items = kept
	idx.UpdatedAt = now
	return removed
}
