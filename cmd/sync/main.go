package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"shorts-gen/internal"
	"shorts-gen/internal/audio"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/pipeline"
	"shorts-gen/internal/s3"
	"shorts-gen/internal/sources"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	var (
		syncBeds   = flag.Bool("sync-beds", false, "Pull new beds from the playlists into beds/ and beds.json")
		syncVideos = flag.Bool("sync-videos", false, "Reconcile videos.json with the videos/ folder")
		cleanup    = flag.Bool("cleanup", false, "Drop expired clip bans and videos older than MAX_AGE")
		syncAll    = flag.Bool("sync-all", false, "All of the above")
	)
	flag.Parse()

	if !*syncBeds && !*syncVideos && !*cleanup && !*syncAll {
		fmt.Println("Usage: sync [-sync-beds] [-sync-videos] [-cleanup] [-sync-all]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New("sync.log")
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	store, err := s3.Open(cfg)
	if err != nil {
		log.Errorf("Error opening storage: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	disliked := sources.NewDislikedVisuals(store, cfg.DislikedVisualsJSONKey, cfg.DislikedVisualGracePeriod, log)
	// indexing only, no rendering dependencies needed
	gen := pipeline.NewGenerator(cfg, store, log, pipeline.Deps{Disliked: disliked})

	failed := false
	step := func(name string, fn func() error) {
		fmt.Printf("=== %s ===\n", name)
		if err := fn(); err != nil {
			failed = true
			log.Errorf("%s: %v", name, err)
			fmt.Printf("❌ %s failed: %v\n", name, err)
			return
		}
		fmt.Printf("✅ %s done\n", name)
	}

	if *syncAll || *syncBeds {
		step("Syncing beds", func() error {
			return audio.NewIndexer(cfg, store, log).EnsureBeds(ctx)
		})
	}
	if *syncAll || *syncVideos {
		step("Syncing videos.json", func() error {
			return gen.SyncWithS3(ctx)
		})
	}
	if *syncAll || *cleanup {
		step("Cleaning up", func() error {
			bans, err := disliked.Cleanup(ctx)
			if err != nil {
				return err
			}
			videos, err := gen.DeleteVideosOlderThan(ctx, cfg.MaxAge)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired bans and %d old videos\n", bans, videos)
			return nil
		})
	}

	fmt.Println("=== Synchronization complete ===")
	if failed {
		os.Exit(1)
	}
}
