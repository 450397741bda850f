package captions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"shorts-gen/internal/media"
	"shorts-gen/internal/model"
)

// RenderJob is what every strategy receives: the composed video and the cues
// to burn onto it. Strategies write only inside Workspace.
type RenderJob struct {
	Workspace *media.Workspace
	Video     model.MediaAsset
	Cues      []model.CaptionCue
}

// Strategy burns captions with one fixed configuration and returns the
// output path.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, job RenderJob) (string, error)
}

// DefaultStrategyNames is the built-in fallback order, richest styling first.
var DefaultStrategyNames = []string{"subtitles", "ass", "drawtext", "drawtext_short"}

// IsKnownStrategy reports whether name is a built-in strategy.
func IsKnownStrategy(name string) bool {
	for _, n := range DefaultStrategyNames {
		if n == name {
			return true
		}
	}
	return false
}

// NewStrategies resolves strategy names in order. Unknown names are an error.
func NewStrategies(names []string, styles Styles, runner media.Runner) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case "subtitles":
			out = append(out, &subtitlesStrategy{style: styles.Subtitles, runner: runner})
		case "ass":
			out = append(out, &assStrategy{style: styles.ASS, runner: runner})
		case "drawtext":
			out = append(out, &drawtextStrategy{name: name, style: styles.Drawtext, runner: runner})
		case "drawtext_short":
			limit := styles.ShortMaxChars
			out = append(out, &drawtextStrategy{
				name:   name,
				style:  styles.DrawtextShort,
				runner: runner,
				text:   func(s string) string { return shortenText(s, limit) },
			})
		default:
			return nil, fmt.Errorf("unknown render strategy %q", name)
		}
	}
	return out, nil
}

func encodeArgs(in, out string, vf ...string) []string {
	args := []string{"-i", in}
	args = append(args, vf...)
	return append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		out,
	)
}

// quoteFilterPath wraps a path for use as a filter argument.
func quoteFilterPath(p string) string {
	return "'" + strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`) + "'"
}

// subtitlesStrategy burns an SRT file through libass with force_style.
type subtitlesStrategy struct {
	style  Style
	runner media.Runner
}

func (s *subtitlesStrategy) Name() string { return "subtitles" }

func (s *subtitlesStrategy) Attempt(ctx context.Context, job RenderJob) (string, error) {
	srt := job.Workspace.Path("captions.srt")
	if err := WriteSRT(srt, job.Cues); err != nil {
		return "", err
	}
	out := job.Workspace.Path("captioned_subtitles.mp4")
	vf := fmt.Sprintf("subtitles=%s:force_style='%s'", quoteFilterPath(srt), forceStyle(s.style))
	return out, s.runner.Run(ctx, encodeArgs(job.Video.Path, out, "-vf", vf)...)
}

func forceStyle(st Style) string {
	parts := []string{
		"FontName=" + st.FontName,
		fmt.Sprintf("FontSize=%d", st.FontSize),
		"PrimaryColour=" + st.PrimaryColour,
		"OutlineColour=" + st.OutlineColour,
		"BorderStyle=1",
		fmt.Sprintf("Outline=%d", st.Outline),
		fmt.Sprintf("Shadow=%d", st.Shadow),
		"Alignment=2",
	}
	if st.MarginV > 0 {
		parts = append(parts, fmt.Sprintf("MarginV=%d", st.MarginV))
	}
	if st.Bold {
		parts = append(parts, "Bold=1")
	}
	return strings.Join(parts, ",")
}

// assStrategy writes a full ASS script sized for 1080x1920 and burns it with the ass filter.
type assStrategy struct {
	style  Style
	runner media.Runner
}

func (s *assStrategy) Name() string { return "ass" }

func (s *assStrategy) Attempt(ctx context.Context, job RenderJob) (string, error) {
	path := job.Workspace.Path("captions.ass")
	if err := os.WriteFile(path, []byte(buildASS(job.Cues, s.style)), 0o644); err != nil {
		return "", err
	}
	out := job.Workspace.Path("captioned_ass.mp4")
	return out, s.runner.Run(ctx, encodeArgs(job.Video.Path, out, "-vf", "ass="+quoteFilterPath(path))...)
}

func buildASS(cues []model.CaptionCue, st Style) string {
	bold := 0
	if st.Bold {
		bold = -1
	}
	var b strings.Builder
	b.WriteString("[Script Info]\nScriptType: v4.00+\nPlayResX: 1080\nPlayResY: 1920\nWrapStyle: 0\n\n")
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Caption,%s,%d,%s,%s,%s,&H80000000,%d,0,0,0,100,100,0,0,1,%d,%d,2,60,60,%d,1\n\n",
		st.FontName, st.FontSize, st.PrimaryColour, st.PrimaryColour, st.OutlineColour, bold, st.Outline, st.Shadow, st.MarginV)
	b.WriteString("[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range cues {
		text := strings.NewReplacer("\n", `\N`, "{", "(", "}", ")").Replace(c.Text)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,%s\n", assTimestamp(c.Start), assTimestamp(c.End), text)
	}
	return b.String()
}

// assTimestamp renders H:MM:SS.cc.
func assTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	cs := int64(seconds*100 + 0.5)
	h := cs / 360000
	cs -= h * 360000
	m := cs / 6000
	cs -= m * 6000
	s := cs / 100
	cs -= s * 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// drawtextStrategy draws each cue with its own drawtext filter, enabled only
// within the cue's span. The filter chain goes to a script file so long
// transcripts do not hit argument length limits.
type drawtextStrategy struct {
	name   string
	style  Style
	runner media.Runner
	text   func(string) string
}

func (s *drawtextStrategy) Name() string { return s.name }

func (s *drawtextStrategy) Attempt(ctx context.Context, job RenderJob) (string, error) {
	chain := drawtextChain(job.Cues, s.style, s.text)
	if chain == "" {
		return "", fmt.Errorf("%s: no drawable text", s.name)
	}
	script := job.Workspace.Path(s.name + "_filter.txt")
	if err := os.WriteFile(script, []byte(chain), 0o644); err != nil {
		return "", err
	}
	out := job.Workspace.Path("captioned_" + s.name + ".mp4")
	return out, s.runner.Run(ctx, encodeArgs(job.Video.Path, out, "-filter_script:v", script)...)
}

func drawtextChain(cues []model.CaptionCue, st Style, transform func(string) string) string {
	filters := make([]string, 0, len(cues))
	for _, c := range cues {
		text := c.Text
		if transform != nil {
			text = transform(text)
		}
		if text == "" {
			continue
		}
		opts := []string{}
		if st.FontFile != "" {
			opts = append(opts, "fontfile="+quoteFilterPath(st.FontFile))
		}
		opts = append(opts,
			"text='"+escapeDrawtext(text)+"'",
			"expansion=none",
			fmt.Sprintf("fontsize=%d", st.FontSize),
			"fontcolor="+st.FontColor,
			fmt.Sprintf("borderw=%d", st.BorderW),
			"bordercolor="+st.BorderColor,
			"x=(w-text_w)/2",
			"y="+st.Y,
			fmt.Sprintf("enable='between(t,%s,%s)'", media.FormatSeconds(c.Start), media.FormatSeconds(c.End)),
		)
		filters = append(filters, "drawtext="+strings.Join(opts, ":"))
	}
	return strings.Join(filters, ",\n")
}

var drawtextEscaper = strings.NewReplacer(`\`, "", "'", "’", ":", `\:`, "\n", " ")

func escapeDrawtext(s string) string {
	return drawtextEscaper.Replace(s)
}

// shortenText keeps letters, digits and spaces, upper-cases the result and
// cuts it to limit runes.
func shortenText(s string, limit int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if r := []rune(out); len(r) > limit {
		out = strings.TrimSpace(string(r[:limit]))
	}
	return out
}
