package uploaders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"shorts-gen/internal/logging"
)

const tiktokUploadURL = "https://www.tiktok.com/upload?lang=en"

// TikTokUploader drives the web upload page with a headless browser,
// authenticated by an exported cookie file.
type TikTokUploader struct {
	cookiesPath string
	Headless    bool
	Timeout     time.Duration
	log         *logging.Logger
}

// Cookie is one entry of a browser cookie export.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
}

func NewTikTokUploader(cookiesPath string, log *logging.Logger) *TikTokUploader {
	return &TikTokUploader{cookiesPath: cookiesPath, Headless: true, Timeout: 5 * time.Minute, log: log}
}

// Platform returns the platform name
func (t *TikTokUploader) Platform() string {
	return "tiktok"
}

// LoadCookies reads a JSON array of cookies, dropping entries without a name.
func LoadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []Cookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	cookies := raw[:0]
	for _, c := range raw {
		if c.Name == "" {
			continue
		}
		if c.Domain == "" {
			c.Domain = ".tiktok.com"
		}
		if c.Path == "" {
			c.Path = "/"
		}
		cookies = append(cookies, c)
	}
	if len(cookies) == 0 {
		return nil, errors.New("cookie file has no cookies")
	}
	return cookies, nil
}

func (t *TikTokUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	cookies, err := LoadCookies(t.cookiesPath)
	if err != nil {
		return failed("tiktok", "Missing cookies", err)
	}
	videoPath, err := filepath.Abs(req.VideoPath)
	if err != nil {
		return failed("tiktok", "Bad video path", err)
	}
	caption := req.Caption
	if caption == "" {
		caption = req.Title
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", t.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	bctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	bctx, cancel = context.WithTimeout(bctx, t.Timeout)
	defer cancel()

	setCookies := chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})

	err = chromedp.Run(bctx,
		setCookies,
		chromedp.Navigate(tiktokUploadURL),
		chromedp.WaitReady(`input[type="file"]`, chromedp.ByQuery),
		chromedp.SetUploadFiles(`input[type="file"]`, []string{videoPath}, chromedp.ByQuery),
		chromedp.Sleep(10*time.Second),
		chromedp.Click(`div[contenteditable="true"]`, chromedp.ByQuery),
		chromedp.SendKeys(`div[contenteditable="true"]`, caption, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Click(`//button[.//div[text()="Post"] or text()="Post"]`, chromedp.BySearch),
		chromedp.Sleep(15*time.Second),
	)
	if err != nil {
		return failed("tiktok", fmt.Sprintf("Browser upload failed: %v", err), err)
	}
	if t.log != nil {
		t.log.Infof("uploaders: tiktok posted %s", filepath.Base(videoPath))
	}
	return &UploadResult{
		Success:  true,
		Platform: "tiktok",
		Details:  map[string]string{"caption": caption},
	}, nil
}
