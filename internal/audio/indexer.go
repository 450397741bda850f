package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/samber/lo"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/s3"
)

// ErrNoBeds means neither the store nor the local assets hold a bed.
var ErrNoBeds = errors.New("no beds available")

// Indexer maintains the bed library: tracks pulled from YouTube playlists
// into the store and listed in beds.json.
type Indexer struct {
	cfg internal.Config
	s3  s3.Client
	log *logging.Logger

	// LocalDirs are searched for *.mp3 and *.m4a beds when the index is empty.
	LocalDirs []string
}

func NewIndexer(cfg internal.Config, s3c s3.Client, log *logging.Logger) *Indexer {
	return &Indexer{cfg: cfg, s3: s3c, log: log, LocalDirs: []string{"assets"}}
}

func (idx *Indexer) EnsureBeds(ctx context.Context) error {
	idx.log.Infof("audio: ensuring beds index - START")
	var beds model.BedsIndex
	found, err := idx.s3.ReadJSON(ctx, idx.cfg.BedsJSONKey, &beds)
	if err != nil {
		idx.log.Errorf("audio: read %s failed: %v", idx.cfg.BedsJSONKey, err)
		return fmt.Errorf("read %s: %w", idx.cfg.BedsJSONKey, err)
	}
	if !found {
		beds = model.BedsIndex{Items: []model.Bed{}}
		idx.log.Infof("audio: creating new beds index")
	} else {
		idx.log.Infof("audio: loaded beds index with %d items", len(beds.Items))
	}

	playlists, err := idx.loadPlaylists(ctx)
	if err != nil {
		idx.log.Warnf("audio: no playlists configured, skipping bed download: %v", err)
		return nil
	}
	if len(playlists) == 0 {
		idx.log.Infof("audio: music_playlists.json is empty")
		return nil
	}

	client := youtube.Client{}
	added := 0
	for i, plURL := range playlists {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx.log.Infof("audio: fetching playlist %d/%d: %s", i+1, len(playlists), plURL)
		pl, err := client.GetPlaylistContext(ctx, plURL)
		if err != nil {
			idx.log.Errorf("audio: fetch playlist %s failed: %v", plURL, err)
			continue
		}
		for _, entry := range pl.Videos {
			if bedExists(beds, entry.ID) {
				continue
			}
			idx.log.Infof("audio: downloading bed %s (%s)", entry.Title, entry.ID)
			bed, err := idx.downloadAndStore(ctx, &client, entry)
			if err != nil {
				idx.log.Errorf("audio: download bed %s: %v", entry.ID, err)
				continue
			}
			beds.Items = append(beds.Items, bed)
			beds.UpdatedAt = time.Now()
			added++
			if err := idx.s3.WriteJSON(ctx, idx.cfg.BedsJSONKey, &beds); err != nil {
				idx.log.Errorf("audio: update %s after %s: %v", idx.cfg.BedsJSONKey, entry.ID, err)
			}
		}
	}
	idx.log.Infof("audio: playlists processed - %d beds, %d new", len(beds.Items), added)
	return nil
}

func (idx *Indexer) downloadAndStore(ctx context.Context, client *youtube.Client, entry *youtube.PlaylistEntry) (model.Bed, error) {
	v, err := client.GetVideoContext(ctx, entry.ID)
	if err != nil {
		return model.Bed{}, err
	}
	formats := v.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return model.Bed{}, errors.New("no audio formats")
	}
	format := formats[0]

	tmp, err := os.CreateTemp("", "bed-"+entry.ID+"-*.m4a")
	if err != nil {
		return model.Bed{}, err
	}
	defer os.Remove(tmp.Name())

	stream, _, err := client.GetStreamContext(ctx, v, &format)
	if err != nil {
		tmp.Close()
		return model.Bed{}, err
	}
	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), stream)
	stream.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.Bed{}, err
	}

	key := idx.cfg.BedsPrefix + entry.ID + ".m4a"
	if err := idx.s3.PutFile(ctx, key, tmp.Name(), "audio/mp4"); err != nil {
		return model.Bed{}, fmt.Errorf("store %s: %w", key, err)
	}
	idx.log.Infof("audio: stored bed %s -> %s", entry.ID, key)

	now := time.Now()
	return model.Bed{
		ID:         entry.ID,
		Title:      entry.Title,
		Author:     cleanAuthorName(v.Author),
		SourceURL:  "https://www.youtube.com/watch?v=" + entry.ID,
		AudioKey:   key,
		DurationS:  entry.Duration.Seconds(),
		AddedAt:    now,
		LastSeenAt: now,
		SHA256:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func cleanAuthorName(author string) string {
	// YouTube appends " - Topic" to auto-generated artist channels
	return strings.TrimSuffix(author, " - Topic")
}

func bedExists(beds model.BedsIndex, id string) bool {
	return lo.ContainsBy(beds.Items, func(b model.Bed) bool { return b.ID == id })
}

func (idx *Indexer) loadPlaylists(ctx context.Context) ([]string, error) {
	key := idx.cfg.PayloadPrefix + "music_playlists.json"
	data, _, err := idx.s3.GetBytes(ctx, key)
	if err == nil {
		return parsePlaylists(data)
	}
	idx.log.Infof("audio: %s not in store (%v), trying local paths", key, err)
	for _, p := range []string{"music_playlists.json", "cmd/music_playlists.json", "internal/audio/music_playlists.json"} {
		if d, rerr := os.ReadFile(p); rerr == nil {
			return parsePlaylists(d)
		}
	}
	return nil, errors.New("music_playlists.json not found")
}

// PickBed returns a random bed from the index, falling back to audio files
// in LocalDirs. ErrNoBeds means the unit goes out without a bed.
func (idx *Indexer) PickBed(ctx context.Context) (*model.Bed, error) {
	var beds model.BedsIndex
	found, err := idx.s3.ReadJSON(ctx, idx.cfg.BedsJSONKey, &beds)
	if err != nil {
		idx.log.Warnf("audio: read %s: %v", idx.cfg.BedsJSONKey, err)
	}
	if found && len(beds.Items) > 0 {
		b := beds.Items[randomIndex(len(beds.Items))]
		return &b, nil
	}

	local := idx.localBeds()
	if len(local) == 0 {
		return nil, ErrNoBeds
	}
	p := local[randomIndex(len(local))]
	name := filepath.Base(p)
	return &model.Bed{
		ID:        strings.TrimSuffix(name, filepath.Ext(name)),
		Title:     name,
		LocalPath: p,
	}, nil
}

func (idx *Indexer) localBeds() []string {
	var out []string
	for _, dir := range idx.LocalDirs {
		for _, pattern := range []string{"*.mp3", "*.m4a"} {
			matches, _ := filepath.Glob(filepath.Join(dir, pattern))
			out = append(out, matches...)
		}
	}
	return out
}

// DownloadBed makes the bed available as a file inside dir.
func (idx *Indexer) DownloadBed(ctx context.Context, bed *model.Bed, dir string) (string, error) {
	if bed == nil {
		return "", errors.New("bed is nil")
	}
	if bed.LocalPath != "" {
		return bed.LocalPath, nil
	}
	if bed.AudioKey == "" {
		return "", fmt.Errorf("bed %s has no audio key", bed.ID)
	}
	dst := filepath.Join(dir, "bed-"+bed.ID+filepath.Ext(bed.AudioKey))
	if err := idx.s3.DownloadFile(ctx, bed.AudioKey, dst); err != nil {
		return "", fmt.Errorf("download %s: %w", bed.AudioKey, err)
	}
	return dst, nil
}
