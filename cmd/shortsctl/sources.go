package main

import (
	"crypto/sha256"
	"fmt"
	"math/bits"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shorts-gen/internal/s3"
	"shorts-gen/internal/sources"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [QUERY]",
	Short: "Download the first usable portrait clip for a query from Pexels",
	Long: `Fetch searches Pexels for portrait footage and downloads the first clip that
is not disliked, has not been published before and decodes as video. Without
a query a random one is used. The blacklists are read from the configured
storage.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		query := sources.RandomQuery()
		if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
			query = args[0]
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		store, err := s3.Open(cfg)
		if err != nil {
			return err
		}

		px := sources.NewPexels(cfg, store, log)
		cands, err := px.Search(cmd.Context(), query)
		if err != nil {
			return err
		}
		got, err := px.Fetch(cmd.Context(), dir, cands)
		if err != nil {
			return fmt.Errorf("%q: %w", query, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s\n   query %q, clip %s (%dx%d, %.1fs)\n   %s\n",
			got.Path, query, got.ID, got.Width, got.Height, got.Duration, got.PageURL)
		return nil
	},
}

var framesCmd = &cobra.Command{
	Use:   "frames IMAGE IMAGE",
	Short: "Compare two preview frames the way the visual blacklist does",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		b, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		ha, err := sources.FrameHash(a)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		hb, err := sources.FrameHash(b)
		if err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}
		similar, err := sources.SimilarFrames(a, b)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s\t%016x\n%s\t%016x\n", args[0], ha, args[1], hb)
		fmt.Fprintf(w, "same file: %v\n", sha256.Sum256(a) == sha256.Sum256(b))
		fmt.Fprintf(w, "hash distance: %d bits\n", bits.OnesCount64(ha^hb))
		fmt.Fprintf(w, "blacklisted as duplicate: %v\n", ha == hb && ha != 0)
		fmt.Fprintf(w, "similar: %v\n", similar)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("dir", ".", "directory to download into")
}
