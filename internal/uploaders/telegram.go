package uploaders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const telegramCaptionLimit = 1024

// TelegramUploader posts finished shorts to a channel.
type TelegramUploader struct {
	botToken string
	chatID   string
	BaseURL  string
	hc       *http.Client
}

// NewTelegramUploader creates a new Telegram uploader
func NewTelegramUploader(botToken, chatID string) *TelegramUploader {
	return &TelegramUploader{
		botToken: botToken,
		chatID:   chatID,
		BaseURL:  "https://api.telegram.org",
		hc:       &http.Client{Timeout: 5 * time.Minute},
	}
}

// SetChatID updates the chat ID
func (t *TelegramUploader) SetChatID(chatID string) {
	t.chatID = chatID
}

// Platform returns the platform name
func (t *TelegramUploader) Platform() string {
	return "telegram"
}

// Upload sends the video with sendVideo, streaming the multipart body.
func (t *TelegramUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if t.botToken == "" {
		return failed("telegram", "Missing bot token", fmt.Errorf("TELEGRAM_BOT_TOKEN not set"))
	}
	if t.chatID == "" {
		return failed("telegram", "Missing chat ID", fmt.Errorf("POSTS_CHATID not set"))
	}

	videoFile, err := os.Open(req.VideoPath)
	if err != nil {
		return failed("telegram", fmt.Sprintf("Failed to open video: %v", err), err)
	}
	defer videoFile.Close()

	caption := req.Caption
	if caption == "" {
		caption = req.Title
	}
	if r := []rune(caption); len(r) > telegramCaptionLimit {
		caption = string(r[:telegramCaptionLimit])
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := writer.WriteField("chat_id", t.chatID); err != nil {
				return err
			}
			if err := writer.WriteField("caption", caption); err != nil {
				return err
			}
			if err := writer.WriteField("supports_streaming", "true"); err != nil {
				return err
			}
			part, err := writer.CreateFormFile("video", filepath.Base(req.VideoPath))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, videoFile); err != nil {
				return err
			}
			return writer.Close()
		}()
		pw.CloseWithError(err)
	}()

	url := fmt.Sprintf("%s/bot%s/sendVideo", t.BaseURL, t.botToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return failed("telegram", fmt.Sprintf("Failed to create request: %v", err), err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.hc.Do(httpReq)
	if err != nil {
		return failed("telegram", fmt.Sprintf("Request failed: %v", err), err)
	}
	defer resp.Body.Close()

	var result struct {
		Ok          bool   `json:"ok"`
		Description string `json:"description"`
		ErrorCode   int    `json:"error_code"`
		Result      struct {
			MessageID int `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failed("telegram", fmt.Sprintf("Failed to parse response: %v", err), err)
	}

	if !result.Ok {
		errMsg := result.Description
		if result.ErrorCode != 0 {
			errMsg = fmt.Sprintf("Error %d: %s", result.ErrorCode, errMsg)
		}
		return failed("telegram", errMsg, fmt.Errorf("telegram post failed: %s", errMsg))
	}

	return &UploadResult{
		Success:  true,
		Platform: "telegram",
		Details: map[string]string{
			"chat_id":    t.chatID,
			"message_id": fmt.Sprint(result.Result.MessageID),
		},
	}, nil
}
