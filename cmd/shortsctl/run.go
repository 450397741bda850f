package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shorts-gen/internal/captions"
	"shorts-gen/internal/model"
	"shorts-gen/internal/pipeline"
	"shorts-gen/internal/transcribe"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build one captioned vertical video from narration, a visual and an optional bed",
	Long: `Run probes the narration, fits the visual to its length, mixes in the bed,
composes a 1080x1920 video and burns captions with the first render strategy
that works.

Captions come from --transcript (Whisper verbose_json or the pipeline's own
transcript JSON) or --captions (an SRT file); without either, the narration
is transcribed with Whisper when OPENAI_API_KEY is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		narration, _ := f.GetString("narration")
		visual, _ := f.GetString("visual")
		bed, _ := f.GetString("bed")
		transcriptPath, _ := f.GetString("transcript")
		srtIn, _ := f.GetString("captions")
		out, _ := f.GetString("out")
		srtOut, _ := f.GetString("srt")
		asJSON, _ := f.GetBool("json")

		if srtOut == "" && cfg.KeepSRT {
			srtOut = strings.TrimSuffix(out, filepath.Ext(out)) + ".srt"
		}

		unit := pipeline.Unit{
			NarrationPath: narration,
			VisualPath:    visual,
			BedPath:       bed,
			OutputPath:    out,
			SRTPath:       srtOut,
		}
		switch {
		case transcriptPath != "":
			tr, err := loadTranscript(transcriptPath)
			if err != nil {
				return err
			}
			unit.Transcript = &tr
		case srtIn != "":
			tr, err := transcriptFromSRT(srtIn)
			if err != nil {
				return err
			}
			unit.Transcript = &tr
		}

		coord, err := pipeline.NewCoordinatorFromConfig(cfg, log)
		if err != nil {
			return err
		}
		outcome, err := coord.Run(cmd.Context(), unit)
		if err != nil {
			var se *pipeline.StageError
			if errors.As(err, &se) {
				return fmt.Errorf("%s failed: %w", se.Stage, se.Err)
			}
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		}
		printOutcome(cmd, outcome)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.String("narration", "", "narration audio (required)")
	f.String("visual", "", "stock video clip (required)")
	f.String("bed", "", "background music")
	f.String("transcript", "", "transcript JSON for the narration")
	f.String("captions", "", "SRT file to caption with instead of a transcript")
	f.StringP("out", "o", "short.mp4", "output video")
	f.String("srt", "", "where to write the cues as SRT (default next to --out when KEEP_SRT)")
	f.Bool("json", false, "print the outcome as JSON")
	_ = runCmd.MarkFlagRequired("narration")
	_ = runCmd.MarkFlagRequired("visual")
	runCmd.MarkFlagsMutuallyExclusive("transcript", "captions")
}

func printOutcome(cmd *cobra.Command, o *pipeline.Outcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✅ %s\n", o.VideoPath)
	fmt.Fprintf(w, "   duration %.2fs (narration %.2fs), visual loops %d, bed %v\n", o.FinalDuration, o.NarrationDuration, o.MatchLoops, o.BedUsed)
	if o.Captioned() {
		fmt.Fprintf(w, "   captions: %s, %d cues (%s)\n", o.CaptionStrategy, o.CueCount, o.Tier)
	} else {
		fmt.Fprintln(w, "   captions: none")
	}
	for _, a := range o.Attempts {
		fmt.Fprintf(w, "   - %s: %s %s\n", a.StrategyID, a.Outcome, a.Diagnostic)
	}
	if o.SRTPath != "" {
		fmt.Fprintf(w, "   subtitles: %s\n", o.SRTPath)
	}
	for _, d := range o.Degradations {
		fmt.Fprintf(w, "   ⚠️ %s\n", d)
	}
	fmt.Fprintf(w, "   took %s\n", o.Elapsed.Round(time.Millisecond))
}

// loadTranscript accepts the pipeline's own transcript JSON, or Whisper
// verbose_json with top-level words.
func loadTranscript(path string) (model.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Transcript{}, err
	}
	var tr model.Transcript
	if err := json.Unmarshal(data, &tr); err == nil && tr.HasWordTimestamps() {
		return tr, nil
	}
	tr, err = transcribe.ParseVerbose(string(data))
	if err != nil {
		return model.Transcript{}, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

// transcriptFromSRT turns each SRT cue into a segment without word timing.
func transcriptFromSRT(path string) (model.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Transcript{}, err
	}
	defer f.Close()
	cues, err := captions.ParseSRT(f)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("%s: %w", path, err)
	}
	tr := model.Transcript{Segments: make([]model.Segment, 0, len(cues))}
	for _, c := range cues {
		tr.Segments = append(tr.Segments, model.Segment{Start: c.Start, End: c.End, Text: strings.ReplaceAll(c.Text, "\n", " ")})
	}
	return tr, nil
}
