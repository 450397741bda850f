package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"shorts-gen/internal/logging"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
)

// Synthesizer turns narration text into an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}

type ElevenLabs struct {
	APIKey  string
	VoiceID string
	Model   string
	BaseURL string
	hc      *http.Client
	log     *logging.Logger
}

func NewElevenLabs(apiKey, voiceID string, log *logging.Logger) *ElevenLabs {
	return &ElevenLabs{
		APIKey:  apiKey,
		VoiceID: voiceID,
		Model:   defaultModel,
		BaseURL: defaultBaseURL,
		hc:      &http.Client{Timeout: 5 * time.Minute},
		log:     log,
	}
}

// Synthesize writes an mp3 of text to outPath.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, outPath string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty text")
	}
	if e.APIKey == "" {
		return errors.New("ELEVENLABS_API_KEY is not set")
	}
	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.Model,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(e.BaseURL, "/"), e.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	e.log.Infof("speech: synthesizing %d chars with voice %s", len(text), e.VoiceID)
	resp, err := e.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("elevenlabs error: %s - %s", resp.Status, string(body))
	}

	tmp := outPath + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("elevenlabs returned empty audio")
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	e.log.Infof("speech: ✓ %s (%d bytes)", outPath, n)
	return os.Rename(tmp, outPath)
}
