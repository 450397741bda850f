package uploaders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeCategoryEducation = "27"

// YouTubeUploader handles YouTube video uploads
type YouTubeUploader struct {
	credentialsPath string
	tokenPath       string
}

// NewYouTubeUploader creates a new YouTube uploader
func NewYouTubeUploader(credentialsPath, tokenPath string) *YouTubeUploader {
	if credentialsPath == "" {
		credentialsPath = "client_secret.json"
	}
	if tokenPath == "" {
		tokenPath = "token.json"
	}
	return &YouTubeUploader{
		credentialsPath: credentialsPath,
		tokenPath:       tokenPath,
	}
}

// Platform returns the platform name
func (y *YouTubeUploader) Platform() string {
	return "youtube"
}

// Upload uploads a video to YouTube
func (y *YouTubeUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	service, err := y.authenticate(ctx)
	if err != nil {
		return failed("youtube", fmt.Sprintf("Authentication failed: %v", err), err)
	}

	videoFile, err := os.Open(req.VideoPath)
	if err != nil {
		return failed("youtube", fmt.Sprintf("Failed to open video file: %v", err), err)
	}
	defer videoFile.Close()

	privacy := req.Privacy
	if privacy == "" {
		privacy = "public"
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateTitle(req.Title),
			Description: req.Description,
			Tags:        VideoTags(req.Tags),
			CategoryId:  youtubeCategoryEducation,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           privacy,
			SelfDeclaredMadeForKids: false,
		},
	}

	res, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(videoFile).Context(ctx).Do()
	if err != nil {
		return failed("youtube", fmt.Sprintf("Upload failed: %v", err), err)
	}

	return &UploadResult{
		Success:  true,
		Platform: "youtube",
		URL:      "https://youtube.com/shorts/" + res.Id,
		Details: map[string]string{
			"id":    res.Id,
			"title": video.Snippet.Title,
		},
	}, nil
}

// VideoTags strips '#' from hashtags and makes sure the shorts tags are present.
func VideoTags(hashtags []string) []string {
	tags := lo.FilterMap(hashtags, func(t string, _ int) (string, bool) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		return t, t != ""
	})
	tags = append(tags, "shorts", "philosophy", "spirituality")
	return lo.Uniq(tags)
}

// truncateTitle keeps titles within the 100 character API limit.
func truncateTitle(title string) string {
	r := []rune(title)
	if len(r) <= 100 {
		return title
	}
	return string(r[:100])
}

// authenticate authenticates with YouTube API
func (y *YouTubeUploader) authenticate(ctx context.Context) (*youtube.Service, error) {
	credBytes, err := os.ReadFile(y.credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(credBytes, youtube.YoutubeUploadScope, youtube.YoutubeScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials file: %w", err)
	}

	token, err := y.loadToken()
	if err != nil {
		return nil, fmt.Errorf("token not found, run generate_token first: %w", err)
	}
	if !token.Valid() && token.RefreshToken == "" {
		return nil, errors.New("token expired and has no refresh token, run generate_token again")
	}

	src := config.TokenSource(ctx, token)
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if fresh.AccessToken != token.AccessToken {
		// best effort; the old token still refreshes next time
		_ = y.saveToken(fresh)
	}

	service, err := youtube.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, src)))
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	return service, nil
}

// loadToken loads OAuth token from file
func (y *YouTubeUploader) loadToken() (*oauth2.Token, error) {
	f, err := os.Open(y.tokenPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

// saveToken saves OAuth token to file
func (y *YouTubeUploader) saveToken(token *oauth2.Token) error {
	f, err := os.Create(y.tokenPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}
