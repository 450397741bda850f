package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

func (p *Pexels) get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := p.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (p *Pexels) open(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("http %d for %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}

// download streams rawURL into path; a failed transfer leaves nothing behind.
func (p *Pexels) download(ctx context.Context, rawURL, path string) error {
	if rawURL == "" {
		return fmt.Errorf("empty url")
	}
	resp, err := p.open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
