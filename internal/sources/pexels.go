package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mowshon/moviego"
	"github.com/tidwall/gjson"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/s3"
)

const (
	pexelsBaseURL = "https://api.pexels.com"
	minVisualSize = 1024
)

// ErrNoCandidates means no stock clip could be used for the unit.
var ErrNoCandidates = errors.New("no usable visual candidates")

// Candidate is one downloadable stock clip from a search.
type Candidate struct {
	ID       string
	PageURL  string
	ImageURL string
	FileURL  string
	Quality  string
	Width    int
	Height   int
	Duration float64
}

// Fetched is the clip chosen for a unit.
type Fetched struct {
	Candidate
	Path string
	Hash uint64
}

// Pexels searches and downloads portrait stock footage.
type Pexels struct {
	APIKey  string
	BaseURL string
	PerPage int
	// Validate rejects files that are not decodable video.
	Validate func(path string) error

	hc        *http.Client
	blacklist *VisualBlacklist
	disliked  *DislikedVisuals
	log       *logging.Logger
}

func NewPexels(cfg internal.Config, s3c s3.Client, log *logging.Logger) *Pexels {
	return &Pexels{
		APIKey:    cfg.PexelsAPIKey,
		BaseURL:   pexelsBaseURL,
		PerPage:   10,
		Validate:  validateVideo,
		hc:        &http.Client{Timeout: 2 * time.Minute},
		blacklist: NewVisualBlacklist(s3c, cfg.VisualHashIndexKey, log),
		disliked:  NewDislikedVisuals(s3c, cfg.DislikedVisualsJSONKey, cfg.DislikedVisualGracePeriod, log),
		log:       log,
	}
}

func (p *Pexels) Blacklist() *VisualBlacklist { return p.blacklist }
func (p *Pexels) Disliked() *DislikedVisuals  { return p.disliked }

// Search queries portrait clips for query.
func (p *Pexels) Search(ctx context.Context, query string) ([]Candidate, error) {
	if p.APIKey == "" {
		return nil, errors.New("PEXELS_API_KEY is not set")
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("orientation", "portrait")
	q.Set("per_page", strconv.Itoa(p.PerPage))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.BaseURL, "/")+"/videos/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.APIKey)

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pexels http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	cands := parseSearch(body)
	p.log.Infof("sources: pexels %q returned %d candidates", query, len(cands))
	return cands, nil
}

func parseSearch(body []byte) []Candidate {
	var out []Candidate
	for _, v := range gjson.GetBytes(body, "videos").Array() {
		file, ok := pickFile(v.Get("video_files").Array())
		if !ok {
			continue
		}
		out = append(out, Candidate{
			ID:       v.Get("id").String(),
			PageURL:  v.Get("url").String(),
			ImageURL: v.Get("image").String(),
			FileURL:  file.Get("link").String(),
			Quality:  file.Get("quality").String(),
			Width:    int(file.Get("width").Int()),
			Height:   int(file.Get("height").Int()),
			Duration: v.Get("duration").Float(),
		})
	}
	return out
}

// pickFile prefers an hd portrait rendition, then the largest portrait one,
// then any hd file, then the first file with a link.
func pickFile(files []gjson.Result) (gjson.Result, bool) {
	var withLink []gjson.Result
	for _, f := range files {
		if f.Get("link").String() != "" {
			withLink = append(withLink, f)
		}
	}
	if len(withLink) == 0 {
		return gjson.Result{}, false
	}
	portrait := func(f gjson.Result) bool { return f.Get("height").Int() > f.Get("width").Int() }
	for _, f := range withLink {
		if f.Get("quality").String() == "hd" && portrait(f) {
			return f, true
		}
	}
	var best gjson.Result
	bestArea := int64(-1)
	for _, f := range withLink {
		if !portrait(f) {
			continue
		}
		if area := f.Get("width").Int() * f.Get("height").Int(); area > bestArea {
			best, bestArea = f, area
		}
	}
	if bestArea >= 0 {
		return best, true
	}
	for _, f := range withLink {
		if f.Get("quality").String() == "hd" {
			return f, true
		}
	}
	return withLink[0], true
}

// Fetch downloads candidates in order into dir and returns the first usable
// clip. Disliked clips and clips whose preview frame was already published
// are skipped.
func (p *Pexels) Fetch(ctx context.Context, dir string, cands []Candidate) (*Fetched, error) {
	for i, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.disliked.IsDisliked(ctx, c.ID) {
			p.log.Infof("sources: skipping disliked visual %s", c.ID)
			continue
		}
		hash := p.previewHash(ctx, c)
		if p.blacklist.Contains(ctx, hash) {
			p.log.Infof("sources: skipping visual %s, frame already used", c.ID)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("visual-%s%s", safeID(c.ID, i), extFromURL(c.FileURL, ".mp4")))
		if err := p.download(ctx, c.FileURL, path); err != nil {
			p.log.Warnf("sources: download visual %s: %v", c.ID, err)
			continue
		}
		if err := p.check(path); err != nil {
			p.log.Warnf("sources: visual %s rejected: %v", c.ID, err)
			os.Remove(path)
			continue
		}
		p.log.Infof("sources: ✓ visual %s (%dx%d %s)", c.ID, c.Width, c.Height, c.Quality)
		return &Fetched{Candidate: c, Path: path, Hash: hash}, nil
	}
	return nil, ErrNoCandidates
}

func (p *Pexels) check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() < minVisualSize {
		return fmt.Errorf("file too small (%d bytes)", info.Size())
	}
	if p.Validate != nil {
		return p.Validate(path)
	}
	return nil
}

func (p *Pexels) previewHash(ctx context.Context, c Candidate) uint64 {
	if c.ImageURL == "" {
		return 0
	}
	data, err := p.get(ctx, c.ImageURL)
	if err != nil {
		p.log.Warnf("image_hash: preview %s: %v (continuing anyway)", c.ID, err)
		return 0
	}
	if _, ok := looksLikeImage(data); !ok {
		return 0
	}
	h, err := FrameHash(data)
	if err != nil {
		p.log.Warnf("image_hash: failed to compute hash for %s: %v (continuing anyway)", c.ID, err)
		return 0
	}
	return h
}

// validateVideo wraps moviego.Load, which panics on some inputs.
func validateVideo(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("moviego.Load panicked: %v", r)
		}
	}()
	_, err = moviego.Load(path)
	return err
}
