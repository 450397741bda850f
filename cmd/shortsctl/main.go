package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
)

var (
	verbose bool
	cfg     internal.Config
	log     = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "shortsctl",
	Short: "Run the shorts media pipeline, or one stage of it, on local files",
	Long: `shortsctl drives the same ffmpeg pipeline the bot uses, without the bot.

"run" takes a narration, a stock clip and an optional music bed through the
whole pipeline. The other commands run one stage so its output can be checked
on its own.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env")
		loaded, err := internal.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		if verbose {
			log = logging.Stdout()
		}
		return applyFlags(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stdout")
	pf.String("scratch", "", "scratch directory for workspaces (SCRATCH_DIR)")
	pf.Duration("timeout", 0, "per ffmpeg invocation timeout (FFMPEG_TIMEOUT)")
	pf.Int("max-words", 0, "caption chunk word limit (CAPTION_MAX_WORDS)")
	pf.Int("max-chars", 0, "caption chunk character limit (CAPTION_MAX_CHARS)")
	pf.Float64("attenuation", -1, "bed attenuation in dB (BED_ATTENUATION_DB)")
	pf.StringSlice("strategies", nil, "caption render strategies in fallback order (RENDER_STRATEGIES)")
	pf.String("anchor", "", "where a long visual is trimmed from: start or center (VISUAL_ANCHOR)")

	rootCmd.AddCommand(runCmd, probeCmd, matchCmd, mixCmd, segmentCmd, renderCmd, fetchCmd, framesCmd)
}

// applyFlags overrides the environment config with any flag the user set.
func applyFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("scratch") {
		cfg.ScratchDir, _ = f.GetString("scratch")
	}
	if f.Changed("timeout") {
		cfg.Timeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("max-words") {
		cfg.MaxWords, _ = f.GetInt("max-words")
	}
	if f.Changed("max-chars") {
		cfg.MaxChars, _ = f.GetInt("max-chars")
	}
	if f.Changed("attenuation") {
		cfg.AttenuationDB, _ = f.GetFloat64("attenuation")
	}
	if f.Changed("strategies") {
		cfg.RenderStrategies, _ = f.GetStringSlice("strategies")
	}
	if f.Changed("anchor") {
		cfg.VisualAnchor, _ = f.GetString("anchor")
	}
	return cfg.ValidatePipeline()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
