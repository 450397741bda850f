package video

import (
	"context"
	"fmt"
	"os"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/media"
	"shorts-gen/internal/model"
)

// verticalFilter scales and pads any input into a 1080x1920 frame.
const verticalFilter = "[0:v]scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black[v];[v]setsar=1[out]"

// Composer muxes the matched visual with the mixed audio into the vertical
// output format.
type Composer struct {
	runner media.Runner
	log    *logging.Logger
}

func NewComposer(runner media.Runner, log *logging.Logger) *Composer {
	return &Composer{runner: runner, log: log}
}

func composeArgs(visualPath, audioPath, outputPath string, duration float64) []string {
	return []string{
		"-threads", "1",
		"-filter_threads", "1",
		"-filter_complex_threads", "1",
		"-i", visualPath,
		"-i", audioPath,
		"-filter_complex", verticalFilter,
		"-map", "[out]",
		"-map", "1:a",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-x264-params", "threads=1",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		"-t", media.FormatSeconds(duration),
		"-shortest",
		outputPath,
	}
}

// Compose writes composed.mp4 into ws, cut to exactly duration seconds.
func (c *Composer) Compose(ctx context.Context, ws *media.Workspace, visual, audio model.MediaAsset, duration float64) (model.MediaAsset, error) {
	if _, err := os.Stat(visual.Path); err != nil {
		return model.MediaAsset{}, fmt.Errorf("visual file not found: %s (%w)", visual.Path, err)
	}
	if _, err := os.Stat(audio.Path); err != nil {
		return model.MediaAsset{}, fmt.Errorf("audio file not found: %s (%w)", audio.Path, err)
	}
	out := ws.Path("composed.mp4")
	c.log.Infof("[FFMPEG] composing %.2fs vertical video", duration)
	if err := c.runner.Run(ctx, composeArgs(visual.Path, audio.Path, out, duration)...); err != nil {
		return model.MediaAsset{}, err
	}
	if _, err := os.Stat(out); err != nil {
		return model.MediaAsset{}, fmt.Errorf("ffmpeg did not create output file: %s (%w)", out, err)
	}
	return model.MediaAsset{Path: out, Kind: model.MediaVideo, Duration: duration}, nil
}
