package captions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Style configures one rendering strategy. ASS-based strategies use the
// colour fields in &HAABBGGRR form; drawtext strategies use FontColor and
// BorderColor.
type Style struct {
	FontName      string `yaml:"font_name"`
	FontFile      string `yaml:"font_file"`
	FontSize      int    `yaml:"font_size"`
	PrimaryColour string `yaml:"primary_colour"`
	OutlineColour string `yaml:"outline_colour"`
	Outline       int    `yaml:"outline"`
	Shadow        int    `yaml:"shadow"`
	Bold          bool   `yaml:"bold"`
	MarginV       int    `yaml:"margin_v"`
	FontColor     string `yaml:"font_color"`
	BorderColor   string `yaml:"border_color"`
	BorderW       int    `yaml:"border_w"`
	Y             string `yaml:"y"`
}

type Styles struct {
	Subtitles     Style `yaml:"subtitles"`
	ASS           Style `yaml:"ass"`
	Drawtext      Style `yaml:"drawtext"`
	DrawtextShort Style `yaml:"drawtext_short"`
	ShortMaxChars int   `yaml:"short_max_chars"`
}

func DefaultStyles() Styles {
	return Styles{
		Subtitles: Style{
			FontName:      "Arial",
			FontSize:      40,
			PrimaryColour: "&HFFFFFF&",
			OutlineColour: "&H000000&",
			Outline:       2,
			MarginV:       60,
		},
		ASS: Style{
			FontName:      "Arial",
			FontSize:      84,
			PrimaryColour: "&H00FFFFFF",
			OutlineColour: "&H00000000",
			Outline:       5,
			Shadow:        1,
			Bold:          true,
			MarginV:       420,
		},
		Drawtext: Style{
			FontSize:    72,
			FontColor:   "white",
			BorderColor: "black",
			BorderW:     5,
			Y:           "h*0.72",
		},
		DrawtextShort: Style{
			FontSize:    64,
			FontColor:   "yellow",
			BorderColor: "black",
			BorderW:     4,
			Y:           "h*0.72",
		},
		ShortMaxChars: 12,
	}
}

// LoadStyles reads a YAML file over the defaults. An empty path returns the defaults.
func LoadStyles(path string) (Styles, error) {
	styles := DefaultStyles()
	if path == "" {
		return styles, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return styles, fmt.Errorf("caption styles: %w", err)
	}
	if err := yaml.Unmarshal(b, &styles); err != nil {
		return styles, fmt.Errorf("caption styles %s: %w", path, err)
	}
	if styles.ShortMaxChars < 1 {
		return styles, fmt.Errorf("caption styles %s: short_max_chars must be >= 1", path)
	}
	return styles, nil
}
