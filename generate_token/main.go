package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shorts-gen/internal"
	"shorts-gen/internal/s3"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	tokenPath := flag.String("token", "token.json", "Path to save token.json")
	credentialsPath := flag.String("credentials", "client_secret.json", "Path to the OAuth client secrets file")
	upload := flag.Bool("upload", false, "Also store both files under tokens/ in the configured storage")
	flag.Parse()

	fmt.Println("🔐 YouTube Token Generator")
	fmt.Println("========================================")
	fmt.Println()

	if _, err := os.Stat(*credentialsPath); os.IsNotExist(err) {
		fmt.Printf("❌ Credentials file not found: %s\n", *credentialsPath)
		fmt.Println("   Create OAuth 2.0 credentials (Desktop app) in Google Cloud Console")
		fmt.Println("   and download the JSON file.")
		os.Exit(1)
	}

	fmt.Printf("📝 Using credentials: %s\n", *credentialsPath)
	fmt.Printf("💾 Token will be saved to: %s\n", *tokenPath)
	fmt.Println()

	ctx := context.Background()

	b, err := os.ReadFile(*credentialsPath)
	if err != nil {
		fmt.Printf("❌ Failed to read credentials: %v\n", err)
		os.Exit(1)
	}

	config, err := google.ConfigFromJSON(b, youtube.YoutubeUploadScope, youtube.YoutubeScope)
	if err != nil {
		fmt.Printf("❌ Failed to create config: %v\n", err)
		os.Exit(1)
	}

	authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Println("📱 Open this URL in your browser:")
	fmt.Printf("   %s\n", authURL)
	fmt.Println()
	fmt.Print("👉 Authorization code: ")

	var authCode string
	if _, err := fmt.Scanln(&authCode); err != nil {
		fmt.Printf("❌ Failed to read auth code: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("⏳ Exchanging code for token...")

	token, err := config.Exchange(ctx, authCode)
	if err != nil {
		fmt.Printf("❌ Failed to exchange token: %v\n", err)
		os.Exit(1)
	}

	// Same layout the uploader reads back: a plain oauth2.Token.
	tokenJSON, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		fmt.Printf("❌ Failed to marshal token: %v\n", err)
		os.Exit(1)
	}
	if dir := filepath.Dir(*tokenPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Printf("❌ Failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}
	if err := os.WriteFile(*tokenPath, tokenJSON, 0o600); err != nil {
		fmt.Printf("❌ Failed to save token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Token saved: %s\n", *tokenPath)
	fmt.Println()

	fmt.Println("📺 Fetching channel information...")
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		fmt.Printf("⚠️  Could not verify channel (will still work): %v\n", err)
	} else if channels, err := svc.Channels.List([]string{"snippet"}).Mine(true).Do(); err != nil {
		fmt.Printf("⚠️  Could not fetch channel info: %v\n", err)
	} else if len(channels.Items) > 0 {
		fmt.Printf("✅ Channel: %s (%s)\n", channels.Items[0].Snippet.Title, channels.Items[0].Id)
	}

	if !*upload {
		fmt.Println()
		fmt.Println("Set YOUTUBE_TOKEN and YOUTUBE_CLIENT_SECRETS to these paths, or rerun with -upload.")
		return
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Printf("❌ Config: %v\n", err)
		os.Exit(1)
	}
	store, err := s3.Open(cfg)
	if err != nil {
		fmt.Printf("❌ Storage: %v\n", err)
		os.Exit(1)
	}
	for key, path := range map[string]string{
		cfg.TokensPrefix + "token.json":         *tokenPath,
		cfg.TokensPrefix + "client_secret.json": *credentialsPath,
	} {
		if err := store.PutFile(ctx, key, path, "application/json"); err != nil {
			fmt.Printf("❌ Upload %s: %v\n", key, err)
			os.Exit(1)
		}
		fmt.Printf("☁️  Stored %s\n", key)
	}
}
