package captions

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"shorts-gen/internal/model"
)

// MinCueDuration is the shortest cue emitted when source timing collapses.
const MinCueDuration = 0.1

const stripPunct = ".,!?;:"

type SegmentOptions struct {
	MaxWords int
	MaxChars int
}

func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{MaxWords: 3, MaxChars: 20}
}

// Tier reports which timing source produced the cues.
type Tier string

const (
	TierNone         Tier = "none"
	TierWords        Tier = "words"        // word timestamps
	TierProportional Tier = "proportional" // segment span split evenly per chunk
	TierMixed        Tier = "mixed"
)

type Segmentation struct {
	Cues []model.CaptionCue
	Tier Tier
}

type timedWord struct {
	text       string
	start, end float64
}

// Segment turns a transcript into short caption cues. Segments with word
// timing are packed word by word; segments without it are packed on their
// text and share the segment span evenly. Chunks never cross segments.
func Segment(tr model.Transcript, opts SegmentOptions) Segmentation {
	if opts.MaxWords < 1 {
		opts.MaxWords = 1
	}
	if opts.MaxChars < 1 {
		opts.MaxChars = 1
	}

	segs := append([]model.Segment(nil), tr.Segments...)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	var cues []model.CaptionCue
	usedWords, usedProportional := false, false
	for _, seg := range segs {
		if len(seg.Words) > 0 {
			out := segmentWords(seg.Words, opts)
			if len(out) > 0 {
				usedWords = true
				cues = append(cues, out...)
			}
			continue
		}
		out := segmentProportional(seg, opts)
		if len(out) > 0 {
			usedProportional = true
			cues = append(cues, out...)
		}
	}

	tier := TierNone
	switch {
	case usedWords && usedProportional:
		tier = TierMixed
	case usedWords:
		tier = TierWords
	case usedProportional:
		tier = TierProportional
	}
	return Segmentation{Cues: normalize(cues), Tier: tier}
}

func segmentWords(words []model.Word, opts SegmentOptions) []model.CaptionCue {
	ws := append([]model.Word(nil), words...)
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })

	var stream []timedWord
	for _, w := range ws {
		text := cleanWord(w.Text)
		if text == "" {
			continue
		}
		end := math.Max(w.End, w.Start)
		stream = append(stream, splitLong(timedWord{text: text, start: w.Start, end: end}, opts.MaxChars)...)
	}

	var cues []model.CaptionCue
	for _, chunk := range pack(stream, opts) {
		cues = append(cues, model.CaptionCue{
			Start: chunk[0].start,
			End:   chunk[len(chunk)-1].end,
			Text:  joinWords(chunk),
		})
	}
	return cues
}

func segmentProportional(seg model.Segment, opts SegmentOptions) []model.CaptionCue {
	if seg.End <= seg.Start {
		return nil
	}
	var stream []timedWord
	for _, f := range strings.Fields(seg.Text) {
		if text := cleanWord(f); text != "" {
			stream = append(stream, splitLong(timedWord{text: text}, opts.MaxChars)...)
		}
	}
	chunks := pack(stream, opts)
	if len(chunks) == 0 {
		return nil
	}
	slice := (seg.End - seg.Start) / float64(len(chunks))
	cues := make([]model.CaptionCue, 0, len(chunks))
	for i, chunk := range chunks {
		start := seg.Start + float64(i)*slice
		end := seg.Start + float64(i+1)*slice
		if i == len(chunks)-1 {
			end = seg.End
		}
		cues = append(cues, model.CaptionCue{Start: start, End: end, Text: joinWords(chunk)})
	}
	return cues
}

// pack greedily groups words. A word joins the open chunk only if both the
// word and character bounds still hold; a chunk that reaches either bound is
// closed at once.
func pack(words []timedWord, opts SegmentOptions) [][]timedWord {
	var chunks [][]timedWord
	var cur []timedWord
	curLen := 0
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, cur)
		}
		cur, curLen = nil, 0
	}
	for _, w := range words {
		n := utf8.RuneCountInString(w.text)
		if len(cur) > 0 && (len(cur)+1 > opts.MaxWords || curLen+1+n > opts.MaxChars) {
			flush()
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, w)
		curLen += n
		if len(cur) == opts.MaxWords || curLen >= opts.MaxChars {
			flush()
		}
	}
	flush()
	return chunks
}

// splitLong breaks a word longer than maxChars into maxChars-rune pieces,
// sharing its time span in proportion to piece length.
func splitLong(w timedWord, maxChars int) []timedWord {
	runes := []rune(w.text)
	if len(runes) <= maxChars {
		return []timedWord{w}
	}
	span := w.end - w.start
	total := float64(len(runes))
	var out []timedWord
	for i := 0; i < len(runes); i += maxChars {
		j := min(i+maxChars, len(runes))
		out = append(out, timedWord{
			text:  string(runes[i:j]),
			start: w.start + span*float64(i)/total,
			end:   w.start + span*float64(j)/total,
		})
	}
	return out
}

func cleanWord(s string) string {
	return strings.Trim(strings.TrimSpace(s), stripPunct)
}

func joinWords(ws []timedWord) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

// normalize enforces start < end and non-overlap across the whole sequence.
func normalize(cues []model.CaptionCue) []model.CaptionCue {
	out := make([]model.CaptionCue, 0, len(cues))
	for _, c := range cues {
		if c.Text == "" {
			continue
		}
		if n := len(out); n > 0 && c.Start < out[n-1].End {
			c.Start = out[n-1].End
		}
		if c.End <= c.Start {
			c.End = c.Start + MinCueDuration
		}
		out = append(out, c)
	}
	return out
}

// ClampCues drops cues that start at or after limit and trims the rest to end by it.
func ClampCues(cues []model.CaptionCue, limit float64) []model.CaptionCue {
	out := make([]model.CaptionCue, 0, len(cues))
	for _, c := range cues {
		if c.Start >= limit {
			continue
		}
		if c.End > limit {
			c.End = limit
		}
		if c.End <= c.Start {
			continue
		}
		out = append(out, c)
	}
	return out
}
