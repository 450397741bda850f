package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shorts-gen/internal"
	"shorts-gen/internal/bot"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/s3"
	"shorts-gen/internal/scheduler"
)

const errorsLog = "errors.log"

func main() {
	// Load .env file if it exists (try multiple paths)
	for _, path := range []string{".env", "../.env", "../../.env"} {
		_ = godotenv.Load(path)
	}

	log, err := logging.New(errorsLog)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutdown signal received")
		cancel()
	}()

	cfg, err := internal.LoadConfig()
	if err != nil {
		log.Errorf("config: %v", err)
		return
	}
	if err := cfg.ValidateService(); err != nil {
		log.Errorf("config: %v", err)
		return
	}

	store, err := s3.Open(cfg)
	if err != nil {
		log.Errorf("storage: %v", err)
		return
	}

	svc, err := scheduler.BuildService(ctx, cfg, store, log)
	if err != nil {
		log.Errorf("build service: %v", err)
		return
	}

	b, err := bot.NewTelegramBot(cfg.TelegramToken, svc, log, errorsLog, cancel)
	if err != nil {
		log.Errorf("bot init: %v", err)
		return
	}

	go func() {
		if err := svc.Run(ctx); err != nil {
			log.Errorf("scheduler stopped: %v", err)
			cancel()
		}
	}()

	if err := b.Run(ctx); err != nil {
		log.Errorf("bot run: %v", err)
		return
	}

	<-ctx.Done()
	time.Sleep(300 * time.Millisecond)
}
