package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
)

// Backend is a pluggable transcription backend.
type Backend interface {
	Transcribe(ctx context.Context, audioPath string) (model.Transcript, error)
}

// Whisper transcribes through the OpenAI audio API with word and segment
// timestamps.
type Whisper struct {
	client openai.Client
	log    *logging.Logger
}

func NewWhisper(apiKey string, log *logging.Logger) *Whisper {
	return &Whisper{client: openai.NewClient(option.WithAPIKey(apiKey)), log: log}
}

func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (model.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return model.Transcript{}, err
	}
	defer f.Close()

	w.log.Infof("transcribe: whisper %s", audioPath)
	res, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:                   f,
		Model:                  openai.AudioModelWhisper1,
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word", "segment"},
	})
	if err != nil {
		return model.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	tr, err := ParseVerbose(res.RawJSON())
	if err != nil {
		return model.Transcript{}, err
	}
	w.log.Infof("transcribe: %d segments, word timestamps=%v", len(tr.Segments), tr.HasWordTimestamps())
	return tr, nil
}

// ParseVerbose converts a verbose_json transcription into a Transcript.
// Top-level words are attached to the segment whose span contains their
// midpoint; a response with words but no segments yields one segment.
func ParseVerbose(js string) (model.Transcript, error) {
	if !gjson.Valid(js) {
		return model.Transcript{}, errors.New("whisper: invalid json response")
	}
	root := gjson.Parse(js)
	tr := model.Transcript{Language: root.Get("language").String()}

	for _, s := range root.Get("segments").Array() {
		tr.Segments = append(tr.Segments, model.Segment{
			Start: s.Get("start").Float(),
			End:   s.Get("end").Float(),
			Text:  strings.TrimSpace(s.Get("text").String()),
		})
	}

	var words []model.Word
	for _, w := range root.Get("words").Array() {
		text := strings.TrimSpace(w.Get("word").String())
		if text == "" {
			continue
		}
		words = append(words, model.Word{Text: text, Start: w.Get("start").Float(), End: w.Get("end").Float()})
	}
	sort.SliceStable(words, func(i, j int) bool { return words[i].Start < words[j].Start })

	if len(tr.Segments) == 0 {
		if len(words) == 0 {
			if text := strings.TrimSpace(root.Get("text").String()); text != "" {
				tr.Segments = []model.Segment{{Start: 0, End: root.Get("duration").Float(), Text: text}}
			}
			return tr, nil
		}
		texts := make([]string, len(words))
		for i, w := range words {
			texts[i] = w.Text
		}
		tr.Segments = []model.Segment{{
			Start: words[0].Start,
			End:   words[len(words)-1].End,
			Text:  strings.Join(texts, " "),
			Words: words,
		}}
		return tr, nil
	}

	for _, w := range words {
		i := segmentFor(tr.Segments, (w.Start+w.End)/2)
		tr.Segments[i].Words = append(tr.Segments[i].Words, w)
	}
	return tr, nil
}

// segmentFor returns the segment containing t, or the nearest one.
func segmentFor(segs []model.Segment, t float64) int {
	best, bestDist := 0, -1.0
	for i, s := range segs {
		if t >= s.Start && t <= s.End {
			return i
		}
		d := s.Start - t
		if t > s.End {
			d = t - s.End
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
