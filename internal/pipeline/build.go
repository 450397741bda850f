package pipeline

import (
	"fmt"

	"shorts-gen/internal"
	"shorts-gen/internal/audio"
	"shorts-gen/internal/captions"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/media"
	"shorts-gen/internal/transcribe"
	"shorts-gen/internal/video"
)

// NewCoordinatorFromConfig wires the ffmpeg backed stages. Captions are
// transcribed with Whisper when an OpenAI key is configured.
func NewCoordinatorFromConfig(cfg internal.Config, log *logging.Logger) (*Coordinator, error) {
	media.SetParallelism(cfg.FFmpegParallel)
	runner := media.NewFFmpeg(cfg.Timeout, log)
	prober := media.NewFFProbe(cfg.Timeout)

	styles, err := captions.LoadStyles(cfg.CaptionStyles)
	if err != nil {
		return nil, err
	}
	if cfg.ShortMaxChars > 0 {
		styles.ShortMaxChars = cfg.ShortMaxChars
	}
	strategies, err := captions.NewStrategies(cfg.RenderStrategies, styles, runner)
	if err != nil {
		return nil, fmt.Errorf("render strategies: %w", err)
	}

	matcher := video.NewMatcher(runner, prober, cfg.MatchTolerance, log)
	if cfg.VisualAnchor == string(video.AnchorCenter) {
		matcher.Anchor = video.AnchorCenter
	}

	var tr Transcriber
	if cfg.OpenAIAPIKey != "" {
		tr = transcribe.NewWhisper(cfg.OpenAIAPIKey, log)
	} else {
		log.Warnf("pipeline: OPENAI_API_KEY not set, videos ship without captions unless a transcript is supplied")
	}

	return NewCoordinator(
		Options{
			ScratchDir:    cfg.ScratchDir,
			Segment:       captions.SegmentOptions{MaxWords: cfg.MaxWords, MaxChars: cfg.MaxChars},
			AttenuationDB: cfg.AttenuationDB,
		},
		prober,
		matcher,
		audio.NewMixer(runner, prober, log),
		video.NewComposer(runner, log),
		captions.NewRenderer(strategies, cfg.Timeout, log),
		tr,
		log,
	), nil
}
