package model

import "time"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// MediaAsset is a probed file on local disk. Duration is derived by probing
// and is never persisted; re-probe whenever the file may have changed.
type MediaAsset struct {
	Path     string    `json:"path"`
	Kind     MediaKind `json:"kind"`
	Duration float64   `json:"duration"`
}

type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// HasWordTimestamps reports whether any segment carries word-level timing.
func (t Transcript) HasWordTimestamps() bool {
	for _, s := range t.Segments {
		if len(s.Words) > 0 {
			return true
		}
	}
	return false
}

type CaptionCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// MixSpec describes one narration/bed mix. A nil Bed means no bed.
type MixSpec struct {
	Primary       MediaAsset  `json:"primary"`
	Bed           *MediaAsset `json:"bed,omitempty"`
	AttenuationDB float64     `json:"attenuation_db"`
}

type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
)

type RenderAttempt struct {
	StrategyID string         `json:"strategy_id"`
	Outcome    AttemptOutcome `json:"outcome"`
	Diagnostic string         `json:"diagnostic,omitempty"`
	Elapsed    time.Duration  `json:"elapsed"`
}

// Video is one staged content unit, tracked in videos.json.
type Video struct {
	ID              string          `json:"id"`
	Topic           string          `json:"topic"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Caption         string          `json:"caption"`
	Hashtags        []string        `json:"hashtags"`
	VideoKey        string          `json:"video_key"`
	SubtitleKey     string          `json:"subtitle_key,omitempty"`
	LocalPath       string          `json:"local_path,omitempty"`
	DurationS       float64         `json:"duration_s"`
	BedID           string          `json:"bed_id,omitempty"`
	VisualID        string          `json:"visual_id,omitempty"`
	VisualURL       string          `json:"visual_url,omitempty"`
	VisualHash      uint64          `json:"visual_hash,omitempty"`
	CaptionStrategy string          `json:"caption_strategy,omitempty"`
	Attempts        []RenderAttempt `json:"attempts,omitempty"`
	Degradations    []string        `json:"degradations,omitempty"`
	Uploads         map[string]bool `json:"uploads,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	SHA256          string          `json:"sha256"`
}

type VideosIndex struct {
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Video   `json:"items"`
}

// Bed is a background music track in the bed library.
type Bed struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	SourceURL  string    `json:"source_url"`
	AudioKey   string    `json:"audio_key"`
	DurationS  float64   `json:"duration_s"`
	AddedAt    time.Time `json:"added_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	SHA256     string    `json:"sha256"`

	// LocalPath is set for beds found on disk instead of in the store.
	LocalPath string `json:"-"`
}

type BedsIndex struct {
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Bed     `json:"items"`
}

// VisualHashIndex holds perceptual hashes of stock clips already used.
type VisualHashIndex struct {
	UpdatedAt time.Time `json:"updated_at"`
	Hashes    []uint64  `json:"hashes"`
}
