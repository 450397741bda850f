package uploaders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
)

// Manager manages all uploaders
type Manager struct {
	mu        sync.RWMutex
	uploaders map[string]Uploader
	selected  []string
	log       *logging.Logger
}

// NewManager registers every platform whose credentials are present.
func NewManager(cfg internal.Config, log *logging.Logger) *Manager {
	m := &Manager{uploaders: make(map[string]Uploader), selected: cfg.UploadPlatforms, log: log}

	if cfg.TelegramToken != "" && cfg.PostsChatID != 0 {
		m.uploaders["telegram"] = NewTelegramUploader(cfg.TelegramToken, strconv.FormatInt(cfg.PostsChatID, 10))
	}
	if cfg.XConsumerKey != "" && cfg.XConsumerSecret != "" && cfg.XAccessToken != "" && cfg.XAccessSecret != "" {
		m.uploaders["x"] = NewXUploader(cfg.XConsumerKey, cfg.XConsumerSecret, cfg.XAccessToken, cfg.XAccessSecret, log)
	}
	if _, err := os.Stat(cfg.YouTubeClientSecrets); err == nil {
		m.uploaders["youtube"] = NewYouTubeUploader(cfg.YouTubeClientSecrets, cfg.YouTubeToken)
	}
	if cfg.TikTokCookies != "" {
		m.uploaders["tiktok"] = NewTikTokUploader(cfg.TikTokCookies, log)
	}
	return m
}

// GetUploader returns an uploader for the specified platform
func (m *Manager) GetUploader(platform string) (Uploader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uploader, ok := m.uploaders[platform]
	if !ok {
		return nil, fmt.Errorf("uploader not found for platform: %s", platform)
	}
	return uploader, nil
}

// Upload uploads to the specified platform
func (m *Manager) Upload(ctx context.Context, platform string, req *UploadRequest) (*UploadResult, error) {
	uploader, err := m.GetUploader(platform)
	if err != nil {
		return failed(platform, err.Error(), err)
	}
	return uploader.Upload(ctx, req)
}

// UploadToSelected uploads to platforms concurrently. Failures are reported
// per platform and never abort the others.
func (m *Manager) UploadToSelected(ctx context.Context, platforms []string, req *UploadRequest) map[string]*UploadResult {
	results := make(map[string]*UploadResult, len(platforms))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, platform := range platforms {
		g.Go(func() error {
			result, err := m.Upload(gctx, platform, req)
			if result == nil {
				result = &UploadResult{Platform: platform}
				if err != nil {
					result.Error = err.Error()
				}
			}
			if err != nil && m.log != nil {
				m.log.Errorf("uploaders: %s ✗ %v", platform, err)
			} else if m.log != nil {
				m.log.Infof("uploaders: %s ✓ %s", platform, result.URL)
			}
			mu.Lock()
			results[platform] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// UploadToConfigured uploads to UPLOAD_PLATFORMS, or to every available
// platform when none are configured.
func (m *Manager) UploadToConfigured(ctx context.Context, req *UploadRequest) (map[string]*UploadResult, error) {
	platforms := m.selected
	if len(platforms) == 0 {
		platforms = m.AvailablePlatforms()
	}
	if len(platforms) == 0 {
		return nil, errors.New("no upload platforms configured")
	}
	return m.UploadToSelected(ctx, platforms, req), nil
}

// AvailablePlatforms returns the registered platforms in name order.
func (m *Manager) AvailablePlatforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	platforms := make([]string, 0, len(m.uploaders))
	for platform := range m.uploaders {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// UpdateTelegramChatID updates the chat ID for Telegram uploader
func (m *Manager) UpdateTelegramChatID(chatID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tg, ok := m.uploaders["telegram"].(*TelegramUploader); ok {
		tg.SetChatID(chatID)
	}
}

// AddUploader adds or replaces an uploader for a platform
func (m *Manager) AddUploader(platform string, uploader Uploader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaders[platform] = uploader
}
