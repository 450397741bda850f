package uploaders

import "context"

// UploadResult represents the result of an upload operation
type UploadResult struct {
	Success  bool              `json:"success"`
	Platform string            `json:"platform"`
	URL      string            `json:"url,omitempty"`
	Error    string            `json:"error,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// UploadRequest is one finished short and its platform text.
type UploadRequest struct {
	VideoPath    string
	SubtitlePath string
	Title        string
	Description  string
	Caption      string
	Tags         []string
	Privacy      string // public, unlisted, private
}

// Uploader is an interface for uploading videos to social media platforms
type Uploader interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
	Platform() string
}

func failed(platform, msg string, err error) (*UploadResult, error) {
	res := &UploadResult{Platform: platform, Error: msg}
	if err != nil {
		res.Details = map[string]string{"error": err.Error()}
	}
	return res, err
}
