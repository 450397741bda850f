package uploaders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/tidwall/gjson"

	"shorts-gen/internal/logging"
)

const (
	xChunkSize   = 4 * 1024 * 1024
	xTextLimit   = 280
	xMaxStatuses = 60
)

var (
	shortsTagRe = regexp.MustCompile(`(?i)(?:^|\s)#shorts\b`)
	spacesRe    = regexp.MustCompile(`\s{2,}`)
)

// XUploader posts a tweet with the video attached using the v2 media API.
type XUploader struct {
	BaseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// NewXUploader creates a new X uploader
func NewXUploader(consumerKey, consumerSecret, accessToken, accessTokenSecret string, log *logging.Logger) *XUploader {
	config := oauth1.NewConfig(consumerKey, consumerSecret)
	token := oauth1.NewToken(accessToken, accessTokenSecret)
	return &XUploader{
		BaseURL:    "https://api.x.com",
		httpClient: config.Client(context.Background(), token),
		log:        log,
	}
}

// Platform returns the platform name
func (x *XUploader) Platform() string {
	return "x"
}

func (x *XUploader) do(req *http.Request, want int) ([]byte, error) {
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		msg := gjson.GetBytes(body, "errors.0.detail").String()
		if msg == "" {
			msg = truncate(string(body), 500)
		}
		return body, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}

func (x *XUploader) postJSON(ctx context.Context, url string, payload any, want int) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return x.do(req, want)
}

// uploadMedia runs initialize, append and finalize, then polls processing.
func (x *XUploader) uploadMedia(ctx context.Context, videoPath string) (string, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer file.Close()
	st, err := file.Stat()
	if err != nil {
		return "", err
	}

	body, err := x.postJSON(ctx, x.BaseURL+"/2/media/upload/initialize", map[string]any{
		"media_type":     "video/mp4",
		"total_bytes":    st.Size(),
		"media_category": "tweet_video",
	}, http.StatusOK)
	if err != nil {
		return "", fmt.Errorf("INIT failed: %w", err)
	}
	mediaID := gjson.GetBytes(body, "data.id").String()
	if mediaID == "" {
		return "", errors.New("INIT returned no media id")
	}

	buf := make([]byte, xChunkSize)
	for segment := 0; ; segment++ {
		n, rerr := io.ReadFull(file, buf)
		if n > 0 {
			if err := x.appendChunk(ctx, mediaID, segment, buf[:n]); err != nil {
				return "", fmt.Errorf("APPEND segment %d failed: %w", segment, err)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("failed to read video file: %w", rerr)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/2/media/upload/%s/finalize", x.BaseURL, mediaID), nil)
	if err != nil {
		return "", err
	}
	body, err = x.do(req, http.StatusOK)
	if err != nil {
		return "", fmt.Errorf("FINALIZE failed: %w", err)
	}
	return mediaID, x.waitProcessing(ctx, mediaID, gjson.GetBytes(body, "data.processing_info"))
}

func (x *XUploader) appendChunk(ctx context.Context, mediaID string, segment int, chunk []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("segment_index", strconv.Itoa(segment)); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("media", "video.mp4")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/2/media/upload/%s/append", x.BaseURL, mediaID), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	_, err = x.do(req, http.StatusOK)
	return err
}

func (x *XUploader) waitProcessing(ctx context.Context, mediaID string, info gjson.Result) error {
	for attempt := 0; info.Exists() && attempt < xMaxStatuses; attempt++ {
		switch info.Get("state").String() {
		case "succeeded":
			return nil
		case "failed":
			return fmt.Errorf("media processing failed: %s", info.Get("error.message").String())
		}
		wait := time.Duration(max(info.Get("check_after_secs").Int(), 1)) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/2/media/upload?command=STATUS&media_id=%s", x.BaseURL, mediaID), nil)
		if err != nil {
			return err
		}
		body, err := x.do(req, http.StatusOK)
		if err != nil {
			return fmt.Errorf("STATUS check failed: %w", err)
		}
		info = gjson.GetBytes(body, "data.processing_info")
	}
	if info.Exists() && info.Get("state").String() != "succeeded" {
		return errors.New("media processing did not finish")
	}
	return nil
}

// Upload uploads a video to X API
func (x *XUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	text := RemoveShortsHashtag(req.Caption)
	if text == "" {
		text = RemoveShortsHashtag(req.Title)
	}
	text = truncate(text, xTextLimit)

	mediaID, err := x.uploadMedia(ctx, req.VideoPath)
	if err != nil {
		return failed("x", "Media upload failed", fmt.Errorf("failed to upload media: %w", err))
	}
	if x.log != nil {
		x.log.Infof("uploaders: x media %s uploaded", mediaID)
	}

	body, err := x.postJSON(ctx, x.BaseURL+"/2/tweets", map[string]any{
		"text":  text,
		"media": map[string]any{"media_ids": []string{mediaID}},
	}, http.StatusCreated)
	if err != nil {
		return failed("x", "Post creation failed", fmt.Errorf("post creation failed: %w", err))
	}
	id := gjson.GetBytes(body, "data.id").String()

	return &UploadResult{
		Success:  true,
		Platform: "x",
		URL:      "https://x.com/i/web/status/" + id,
		Details: map[string]string{
			"tweet_id": id,
			"text":     text,
		},
	}, nil
}

// RemoveShortsHashtag removes the #shorts hashtag, which means nothing on X.
func RemoveShortsHashtag(s string) string {
	if s == "" {
		return s
	}
	result := shortsTagRe.ReplaceAllString(s, " ")
	result = spacesRe.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
