package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"shorts-gen/internal/audio"
	"shorts-gen/internal/captions"
	"shorts-gen/internal/media"
	"shorts-gen/internal/model"
	"shorts-gen/internal/video"
)

var probeCmd = &cobra.Command{
	Use:   "probe FILE...",
	Short: "Print the container duration of each file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prober := media.NewFFProbe(cfg.Timeout)
		failed := 0
		for _, path := range args {
			d, err := prober.Probe(cmd.Context(), path)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3fs\n", path, d)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be probed", failed, len(args))
		}
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match VISUAL",
	Short: "Loop or trim a visual to a target duration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetFloat64("duration")
		out, _ := cmd.Flags().GetString("out")
		if target <= 0 {
			return fmt.Errorf("--duration must be positive, got %g", target)
		}

		runner, prober := backends()
		ws, err := stageWorkspace("match")
		if err != nil {
			return err
		}
		defer ws.Close()

		src, err := media.ProbeAsset(cmd.Context(), prober, args[0], model.MediaVideo)
		if err != nil {
			return err
		}
		m := video.NewMatcher(runner, prober, cfg.MatchTolerance, log)
		m.Anchor = video.Anchor(cfg.VisualAnchor)
		res, err := m.Match(cmd.Context(), ws, src, target)
		if err != nil {
			return err
		}
		if err := media.Publish(res.Asset.Path, out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "✅ %s: %.3fs from %.3fs source, %d loop(s)\n", out, res.Asset.Duration, src.Duration, res.Loops)
		if res.ToleranceExceeded {
			fmt.Fprintf(w, "   ⚠️ off target by more than %s\n", cfg.MatchTolerance)
		}
		return nil
	},
}

var mixCmd = &cobra.Command{
	Use:   "mix NARRATION",
	Short: "Mix a music bed under narration",
	Long: `Mix lays the bed under the narration at the configured attenuation, looping
and trimming it to the narration's length. Without --bed, or when the bed
cannot be used, the output is the narration alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bedPath, _ := cmd.Flags().GetString("bed")
		out, _ := cmd.Flags().GetString("out")

		runner, prober := backends()
		ws, err := stageWorkspace("mix")
		if err != nil {
			return err
		}
		defer ws.Close()

		primary, err := media.ProbeAsset(cmd.Context(), prober, args[0], model.MediaAudio)
		if err != nil {
			return err
		}
		spec := model.MixSpec{Primary: primary, AttenuationDB: cfg.AttenuationDB}
		if bedPath != "" {
			spec.Bed = &model.MediaAsset{Path: bedPath, Kind: model.MediaAudio}
		}
		res, err := audio.NewMixer(runner, prober, log).Mix(cmd.Context(), ws, spec)
		if err != nil {
			return err
		}
		if err := media.Publish(res.Asset.Path, out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if res.BedUsed {
			fmt.Fprintf(w, "✅ %s: bed looped %d time(s) at %.1f dB\n", out, res.BedLoops, cfg.AttenuationDB)
		} else {
			fmt.Fprintf(w, "✅ %s: narration only\n", out)
		}
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "   ⚠️ %s\n", d)
		}
		return nil
	},
}

var segmentCmd = &cobra.Command{
	Use:   "segment TRANSCRIPT",
	Short: "Split a transcript into caption cues and print them as SRT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetFloat64("limit")
		srtOut, _ := cmd.Flags().GetString("srt")

		tr, err := loadTranscript(args[0])
		if err != nil {
			return err
		}
		seg := captions.Segment(tr, captions.SegmentOptions{MaxWords: cfg.MaxWords, MaxChars: cfg.MaxChars})
		cues := seg.Cues
		if limit > 0 {
			cues = captions.ClampCues(cues, limit)
		}

		if srtOut == "" {
			fmt.Fprint(cmd.OutOrStdout(), captions.FormatSRT(cues))
			return nil
		}
		if len(cues) == 0 {
			return fmt.Errorf("%s produced no cues", args[0])
		}
		if err := captions.WriteSRT(srtOut, cues); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: %d cues (%s)\n", srtOut, len(cues), seg.Tier)
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render VIDEO",
	Short: "Burn SRT captions onto a video with the configured strategies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srtIn, _ := cmd.Flags().GetString("captions")
		out, _ := cmd.Flags().GetString("out")

		f, err := os.Open(srtIn)
		if err != nil {
			return err
		}
		cues, err := captions.ParseSRT(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", srtIn, err)
		}
		if len(cues) == 0 {
			return fmt.Errorf("%s has no cues", srtIn)
		}

		styles, err := captions.LoadStyles(cfg.CaptionStyles)
		if err != nil {
			return err
		}
		if cfg.ShortMaxChars > 0 {
			styles.ShortMaxChars = cfg.ShortMaxChars
		}
		runner, prober := backends()
		strategies, err := captions.NewStrategies(cfg.RenderStrategies, styles, runner)
		if err != nil {
			return err
		}

		ws, err := stageWorkspace("render")
		if err != nil {
			return err
		}
		defer ws.Close()

		vid, err := media.ProbeAsset(cmd.Context(), prober, args[0], model.MediaVideo)
		if err != nil {
			return err
		}
		res := captions.NewRenderer(strategies, cfg.Timeout, log).Render(cmd.Context(), captions.RenderJob{
			Workspace: ws,
			Video:     vid,
			Cues:      cues,
		})

		w := cmd.OutOrStdout()
		for _, a := range res.Attempts {
			fmt.Fprintf(w, "   - %s: %s %s\n", a.StrategyID, a.Outcome, a.Diagnostic)
		}
		if res.State.Phase == captions.ExhaustedFailed {
			return fmt.Errorf("all %d render strategies failed", len(strategies))
		}
		if err := media.Publish(res.Output, out); err != nil {
			return err
		}
		fmt.Fprintf(w, "✅ %s: captioned with %s\n", out, res.Strategy)
		return nil
	},
}

func init() {
	matchCmd.Flags().Float64("duration", 0, "target duration in seconds (required)")
	matchCmd.Flags().StringP("out", "o", "matched.mp4", "output video")
	_ = matchCmd.MarkFlagRequired("duration")

	mixCmd.Flags().String("bed", "", "background music")
	mixCmd.Flags().StringP("out", "o", "mixed.m4a", "output audio")

	segmentCmd.Flags().Float64("limit", 0, "clamp cues to this many seconds")
	segmentCmd.Flags().String("srt", "", "write the cues here instead of stdout")

	renderCmd.Flags().String("captions", "", "SRT file with the cues to burn (required)")
	renderCmd.Flags().StringP("out", "o", "captioned.mp4", "output video")
	_ = renderCmd.MarkFlagRequired("captions")
}

func backends() (media.Runner, media.Prober) {
	media.SetParallelism(cfg.FFmpegParallel)
	return media.NewFFmpeg(cfg.Timeout, log), media.NewFFProbe(cfg.Timeout)
}

// stageWorkspace opens a throwaway workspace under the scratch dir, named so
// the bot's janitor can sweep leftovers.
func stageWorkspace(stage string) (*media.Workspace, error) {
	return media.NewWorkspace(cfg.ScratchDir, stage+"-"+time.Now().Format("20060102-150405"))
}
