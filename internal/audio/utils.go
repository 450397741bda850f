package audio

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/tidwall/gjson"
)

func randomIndex(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n)
}

// parsePlaylists reads music_playlists.json: a JSON array of playlist URLs.
func parsePlaylists(data []byte) ([]string, error) {
	res := gjson.ParseBytes(data)
	if !res.IsArray() {
		return nil, errors.New("music_playlists.json must be array")
	}
	var out []string
	for _, item := range res.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
