package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"shorts-gen/internal"
	"shorts-gen/internal/ai"
	"shorts-gen/internal/audio"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/s3"
	"shorts-gen/internal/sources"
	"shorts-gen/internal/speech"
	"shorts-gen/internal/uploaders"
)

// ErrVideoNotFound is returned for an unknown video id.
var ErrVideoNotFound = errors.New("video not found")

// VisualSource finds and downloads a stock clip.
type VisualSource interface {
	Search(ctx context.Context, query string) ([]sources.Candidate, error)
	Fetch(ctx context.Context, dir string, cands []sources.Candidate) (*sources.Fetched, error)
}

// BedSource supplies background music.
type BedSource interface {
	PickBed(ctx context.Context) (*model.Bed, error)
	DownloadBed(ctx context.Context, bed *model.Bed, dir string) (string, error)
}

// Publisher posts a finished video to the configured platforms.
type Publisher interface {
	UploadToConfigured(ctx context.Context, req *uploaders.UploadRequest) (map[string]*uploaders.UploadResult, error)
}

type Deps struct {
	Script      ai.ScriptWriter
	Speech      speech.Synthesizer
	Visuals     VisualSource
	Beds        BedSource
	Coordinator *Coordinator
	Uploads     Publisher // optional
	Blacklist   *sources.VisualBlacklist
	Disliked    *sources.DislikedVisuals
}

// Generator produces a content unit end to end: script, narration, stock
// visual and bed, then the coordinator run, storage and uploads. It also
// owns videos.json.
type Generator struct {
	cfg  internal.Config
	s3   s3.Client
	log  *logging.Logger
	deps Deps
	now  func() time.Time

	videosMu sync.Mutex
}

func NewGenerator(cfg internal.Config, s3c s3.Client, log *logging.Logger, deps Deps) *Generator {
	return &Generator{cfg: cfg, s3: s3c, log: log, deps: deps, now: time.Now}
}

// Build wires a Generator from configuration. uploads may be nil.
func Build(cfg internal.Config, s3c s3.Client, log *logging.Logger, uploads Publisher) (*Generator, error) {
	writer, err := ai.NewScriptWriter(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.ElevenLabsAPIKey == "" {
		return nil, errors.New("ELEVENLABS_API_KEY is required")
	}
	if cfg.PexelsAPIKey == "" {
		return nil, errors.New("PEXELS_API_KEY is required")
	}
	coord, err := NewCoordinatorFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	pexels := sources.NewPexels(cfg, s3c, log)
	return NewGenerator(cfg, s3c, log, Deps{
		Script:      writer,
		Speech:      speech.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice, log),
		Visuals:     pexels,
		Beds:        audio.NewIndexer(cfg, s3c, log),
		Coordinator: coord,
		Uploads:     uploads,
		Blacklist:   pexels.Blacklist(),
		Disliked:    pexels.Disliked(),
	}), nil
}

// Disliked returns the clip ban list, nil when none is wired.
func (g *Generator) Disliked() *sources.DislikedVisuals { return g.deps.Disliked }

// GenerateOne makes one video about topic and adds it to videos.json.
// Failures before the video exists are *StageError; upload failures are
// only recorded on the returned video.
func (g *Generator) GenerateOne(ctx context.Context, topic string) (*model.Video, error) {
	started := g.now()
	id := fmt.Sprintf("short-%s", uuid.NewString()[:8])
	g.log.Infof("generator[%s]: topic %q", id, topic)

	if err := os.MkdirAll(g.cfg.ScratchDir, 0o755); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(g.cfg.ScratchDir, "unit-gen-"+id+"-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	script, err := g.deps.Script.Write(ctx, topic)
	if err != nil {
		return nil, stageErr(StageScript, err)
	}

	narration := filepath.Join(dir, "narration.mp3")
	if err := g.deps.Speech.Synthesize(ctx, script.Narration, narration); err != nil {
		return nil, stageErr(StageSpeech, err)
	}

	visual, err := g.findVisual(ctx, dir, script.VisualQuery)
	if err != nil {
		return nil, stageErr(StageVisualSearch, err)
	}

	var degradations []string
	bed, bedPath := g.bed(ctx, dir, &degradations)

	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return nil, stageErr(StagePublish, err)
	}
	unit := Unit{
		ID:            id,
		NarrationPath: narration,
		VisualPath:    visual.Path,
		BedPath:       bedPath,
		OutputPath:    filepath.Join(g.cfg.OutputDir, id+".mp4"),
	}
	if g.cfg.KeepSRT {
		unit.SRTPath = filepath.Join(g.cfg.OutputDir, id+".srt")
	}
	out, err := g.deps.Coordinator.Run(ctx, unit)
	if err != nil {
		return nil, err
	}

	meta := ai.BuildMetadata(topic, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	v := &model.Video{
		ID:              id,
		Topic:           topic,
		Title:           meta.Title,
		Description:     meta.Description,
		Caption:         meta.Caption,
		Hashtags:        meta.Hashtags,
		VideoKey:        g.cfg.VideosPrefix + id + ".mp4",
		LocalPath:       out.VideoPath,
		DurationS:       out.FinalDuration,
		VisualID:        visual.ID,
		VisualURL:       visual.PageURL,
		VisualHash:      visual.Hash,
		CaptionStrategy: out.CaptionStrategy,
		Attempts:        out.Attempts,
		Degradations:    append(degradations, out.Degradations...),
		CreatedAt:       g.now(),
	}
	if bed != nil {
		v.BedID = bed.ID
	}

	if v.SHA256, err = fileSHA256(out.VideoPath); err != nil {
		return nil, stageErr(StagePublish, err)
	}
	if err := g.s3.PutFile(ctx, v.VideoKey, out.VideoPath, "video/mp4"); err != nil {
		return nil, stageErr(StagePublish, fmt.Errorf("store video: %w", err))
	}
	if out.SRTPath != "" {
		key := g.cfg.VideosPrefix + id + ".srt"
		if err := g.s3.PutFile(ctx, key, out.SRTPath, "application/x-subrip"); err != nil {
			g.log.Warnf("generator[%s]: store subtitles: %v", id, err)
		} else {
			v.SubtitleKey = key
		}
	}

	if g.deps.Blacklist != nil && visual.Hash != 0 {
		if err := g.deps.Blacklist.Add(ctx, visual.Hash); err != nil {
			g.log.Warnf("generator[%s]: blacklist visual: %v", id, err)
		}
	}

	g.upload(ctx, v, out.SRTPath)

	if err := g.addToIndex(ctx, *v); err != nil {
		return v, err
	}
	g.log.Infof("generator[%s]: ✓ %q (%.1fs) in %s", id, v.Title, v.DurationS, g.now().Sub(started).Round(time.Second))
	return v, nil
}

// findVisual searches with the script's query and falls back to a default
// query when it finds nothing usable.
func (g *Generator) findVisual(ctx context.Context, dir, query string) (*sources.Fetched, error) {
	queries := []string{query, sources.RandomQuery()}
	if strings.TrimSpace(query) == "" {
		queries = queries[1:]
	}
	var lastErr error = sources.ErrNoCandidates
	for _, q := range queries {
		cands, err := g.deps.Visuals.Search(ctx, q)
		if err != nil {
			g.log.Warnf("generator: visual search %q: %v", q, err)
			lastErr = err
			continue
		}
		fetched, err := g.deps.Visuals.Fetch(ctx, dir, cands)
		if err == nil {
			return fetched, nil
		}
		g.log.Warnf("generator: no usable visual for %q: %v", q, err)
		lastErr = err
	}
	return nil, lastErr
}

// bed picks and downloads background music. Missing music degrades the
// unit to narration only.
func (g *Generator) bed(ctx context.Context, dir string, degradations *[]string) (*model.Bed, string) {
	if g.deps.Beds == nil {
		return nil, ""
	}
	bed, err := g.deps.Beds.PickBed(ctx)
	if err != nil {
		*degradations = append(*degradations, fmt.Sprintf("no background music: %v", err))
		g.log.Warnf("generator: pick bed: %v", err)
		return nil, ""
	}
	path, err := g.deps.Beds.DownloadBed(ctx, bed, dir)
	if err != nil {
		*degradations = append(*degradations, fmt.Sprintf("background music %s unavailable: %v", bed.ID, err))
		g.log.Warnf("generator: download bed %s: %v", bed.ID, err)
		return nil, ""
	}
	return bed, path
}

func (g *Generator) upload(ctx context.Context, v *model.Video, srtPath string) {
	if g.deps.Uploads == nil {
		return
	}
	results, err := g.deps.Uploads.UploadToConfigured(ctx, &uploaders.UploadRequest{
		VideoPath:    v.LocalPath,
		SubtitlePath: srtPath,
		Title:        v.Title,
		Description:  v.Description,
		Caption:      v.Caption,
		Tags:         v.Hashtags,
	})
	if err != nil {
		g.log.Warnf("generator[%s]: uploads skipped: %v", v.ID, err)
		return
	}
	v.Uploads = make(map[string]bool, len(results))
	for platform, res := range results {
		v.Uploads[platform] = res != nil && res.Success
	}
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (g *Generator) readIndex(ctx context.Context) (model.VideosIndex, error) {
	var idx model.VideosIndex
	if _, err := g.s3.ReadJSON(ctx, g.cfg.VideosJSONKey, &idx); err != nil {
		return idx, fmt.Errorf("read videos.json: %w", err)
	}
	return idx, nil
}

func (g *Generator) writeIndex(ctx context.Context, idx *model.VideosIndex) error {
	idx.UpdatedAt = g.now()
	const maxRetries = 3
	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		if err := g.s3.WriteJSON(ctx, g.cfg.VideosJSONKey, idx); err != nil {
			lastErr = err
			g.log.Warnf("generator: attempt %d/%d to update videos.json failed: %v, retrying...", retry+1, maxRetries, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(retry+1) * 500 * time.Millisecond):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("write videos.json: %w", lastErr)
}

// addToIndex appends v and trims the index to MaxVideos, deleting the
// oldest entries' files.
func (g *Generator) addToIndex(ctx context.Context, v model.Video) error {
	g.videosMu.Lock()
	idx, err := g.readIndex(ctx)
	if err != nil {
		g.videosMu.Unlock()
		g.log.Errorf("generator: CRITICAL - %s is stored but not indexed: %v", v.VideoKey, err)
		return err
	}
	idx.Items = append(idx.Items, v)

	var evicted []model.Video
	if g.cfg.MaxVideos > 0 && len(idx.Items) > g.cfg.MaxVideos {
		sorted := sortVideosByCreated(idx.Items, false)
		evicted = sorted[g.cfg.MaxVideos:]
		idx.Items = sorted[:g.cfg.MaxVideos]
	}
	err = g.writeIndex(ctx, &idx)
	g.videosMu.Unlock()
	if err != nil {
		g.log.Errorf("generator: CRITICAL - %s is stored but not indexed: %v", v.VideoKey, err)
		return err
	}
	for _, old := range evicted {
		g.removeFiles(ctx, old)
	}
	return nil
}

func (g *Generator) removeFiles(ctx context.Context, v model.Video) {
	for _, key := range []string{v.VideoKey, v.SubtitleKey} {
		if key == "" {
			continue
		}
		if err := g.s3.Delete(ctx, key); err != nil {
			g.log.Warnf("generator: delete %s: %v", key, err)
		}
	}
	if v.LocalPath != "" {
		_ = os.Remove(v.LocalPath)
		_ = os.Remove(strings.TrimSuffix(v.LocalPath, filepath.Ext(v.LocalPath)) + ".srt")
	}
}

// ListVideos returns indexed videos, newest first.
func (g *Generator) ListVideos(ctx context.Context) ([]model.Video, error) {
	idx, err := g.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	return sortVideosByCreated(idx.Items, false), nil
}

// GetVideo looks a video up by id.
func (g *Generator) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	idx, err := g.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := lo.Find(idx.Items, func(v model.Video) bool { return v.ID == id })
	if !ok {
		return nil, ErrVideoNotFound
	}
	return &v, nil
}

// DeleteVideo removes a video from the index and storage.
func (g *Generator) DeleteVideo(ctx context.Context, id string) error {
	g.videosMu.Lock()
	idx, err := g.readIndex(ctx)
	if err != nil {
		g.videosMu.Unlock()
		return err
	}
	v, ok := lo.Find(idx.Items, func(v model.Video) bool { return v.ID == id })
	if !ok {
		g.videosMu.Unlock()
		return ErrVideoNotFound
	}
	idx.Items = lo.Reject(idx.Items, func(v model.Video, _ int) bool { return v.ID == id })
	err = g.writeIndex(ctx, &idx)
	g.videosMu.Unlock()
	if err != nil {
		return err
	}
	g.removeFiles(ctx, v)
	g.log.Infof("generator: deleted video %s", id)
	return nil
}

// DeleteVideosOlderThan drops every video created before now-age.
func (g *Generator) DeleteVideosOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := g.now().Add(-age)
	g.videosMu.Lock()
	idx, err := g.readIndex(ctx)
	if err != nil {
		g.videosMu.Unlock()
		return 0, err
	}
	isOld := func(v model.Video, _ int) bool { return v.CreatedAt.Before(cutoff) }
	old, keep := lo.Filter(idx.Items, isOld), lo.Reject(idx.Items, isOld)
	if len(old) == 0 {
		g.videosMu.Unlock()
		return 0, nil
	}
	idx.Items = keep
	err = g.writeIndex(ctx, &idx)
	g.videosMu.Unlock()
	if err != nil {
		return 0, err
	}
	for _, v := range old {
		g.removeFiles(ctx, v)
	}
	g.log.Infof("generator: removed %d videos older than %s", len(old), age)
	return len(old), nil
}

// Dislike bans the stock clip used by a video so it is not picked again
// during the grace period.
func (g *Generator) Dislike(ctx context.Context, videoID string) (*model.Video, error) {
	v, err := g.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v.VisualID == "" {
		return v, fmt.Errorf("video %s has no recorded visual", videoID)
	}
	if g.deps.Disliked == nil {
		return v, errors.New("disliked visuals are not configured")
	}
	if err := g.deps.Disliked.Add(ctx, v.VisualID); err != nil {
		return v, err
	}
	g.log.Infof("generator: visual %s of %s disliked", v.VisualID, videoID)
	return v, nil
}

// SyncWithS3 drops index entries whose video is gone, removes duplicate
// uploads by SHA256 and deletes stored files no entry references.
func (g *Generator) SyncWithS3(ctx context.Context) error {
	g.videosMu.Lock()
	defer g.videosMu.Unlock()

	idx, err := g.readIndex(ctx)
	if err != nil {
		return err
	}
	objects, err := g.s3.List(ctx, g.cfg.VideosPrefix)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}
	actual := make(map[string]bool, len(objects))
	for _, o := range objects {
		actual[o.Key] = true
	}

	seen := make(map[string]bool)
	var kept []model.Video
	var orphaned, duplicates int
	for _, v := range idx.Items {
		if !actual[v.VideoKey] {
			g.log.Infof("generator: removing orphaned entry %s", v.ID)
			orphaned++
			continue
		}
		if v.SHA256 != "" && seen[v.SHA256] {
			g.log.Warnf("generator: removing duplicate video %s (SHA256 %s)", v.ID, v.SHA256)
			duplicates++
			continue
		}
		if v.SubtitleKey != "" && !actual[v.SubtitleKey] {
			v.SubtitleKey = ""
		}
		seen[v.SHA256] = true
		kept = append(kept, v)
	}

	referenced := make(map[string]bool)
	for _, v := range kept {
		referenced[v.VideoKey] = true
		if v.SubtitleKey != "" {
			referenced[v.SubtitleKey] = true
		}
	}
	deleted := 0
	for key := range actual {
		if referenced[key] {
			continue
		}
		if err := g.s3.Delete(ctx, key); err != nil {
			g.log.Errorf("generator: failed to delete orphaned file %s: %v", key, err)
			continue
		}
		deleted++
	}

	idx.Items = kept
	if err := g.writeIndex(ctx, &idx); err != nil {
		return err
	}
	g.log.Infof("generator: sync complete - entries: %d, files: %d, orphaned: %d, duplicates: %d, files deleted: %d",
		len(kept), len(objects), orphaned, duplicates, deleted)
	return nil
}

func sortVideosByCreated(items []model.Video, asc bool) []model.Video {
	out := append([]model.Video(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if asc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
