package sources

import (
	"math/rand/v2"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// DefaultQueries are used when the script does not suggest a visual query.
var DefaultQueries = []string{"psychedelic", "space", "cosmic", "fractal", "nature", "trippy"}

func RandomQuery() string {
	return DefaultQueries[rand.IntN(len(DefaultQueries))]
}

func looksLikeImage(data []byte) (kind string, ok bool) {
	if len(data) < 12 {
		return "", false
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A {
		return "png", true
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg", true
	}
	// GIF
	if string(data[:4]) == "GIF8" {
		return "gif", true
	}
	return "", false
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func safeID(id string, fallback int) string {
	if s := unsafeID.ReplaceAllString(id, ""); s != "" {
		return s
	}
	return strconv.Itoa(fallback)
}

func extFromURL(raw, def string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return def
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".mp4", ".mov", ".webm", ".mkv":
		return ext
	}
	return def
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
