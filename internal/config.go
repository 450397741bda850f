package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"shorts-gen/internal/captions"
)

type Config struct {
	TelegramToken string
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	StoreDir      string // local store used when S3 is not configured

	GeminiAPIKey     string
	OpenAIAPIKey     string
	ScriptProvider   string // "gemini" or "openai"
	ElevenLabsAPIKey string
	ElevenLabsVoice  string
	PexelsAPIKey     string
	RedisURL         string

	YouTubeClientSecrets string
	YouTubeToken         string
	TikTokCookies        string
	XConsumerKey         string
	XConsumerSecret      string
	XAccessToken         string
	XAccessSecret        string
	UploadPlatforms      []string

	BedsJSONKey            string
	VideosJSONKey          string
	ScheduleJSONKey        string
	VisualHashIndexKey     string
	DislikedVisualsJSONKey string

	BedsPrefix    string
	VideosPrefix  string
	TokensPrefix  string
	PayloadPrefix string

	// Pipeline options
	ScratchDir       string
	OutputDir        string
	RenderStrategies []string
	MaxWords         int
	MaxChars         int
	ShortMaxChars    int
	AttenuationDB    float64
	Timeout          time.Duration
	MatchTolerance   time.Duration
	VisualAnchor     string // "start" or "center"
	FFmpegParallel   int
	CaptionStyles    string // optional YAML file
	TopicsFile       string
	KeepSRT          bool

	MaxVideos                 int
	MaxAge                    time.Duration
	DislikedVisualGracePeriod time.Duration

	DailyGenerations int
	PostsChatID      int64
	Silent           bool
}

// S3Enabled reports whether all S3_* settings are present.
func (c Config) S3Enabled() bool {
	return c.S3Endpoint != "" && c.S3Region != "" && c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func LoadConfig() (Config, error) {
	cfg := Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3Region:         os.Getenv("S3_REGION"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3AccessKey:      firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("S3_ACCESS_KEY_ID")),
		S3SecretKey:      firstNonEmpty(os.Getenv("S3_SECRET_ACCESS_KEY"), os.Getenv("S3_SECRET_ACCESS_KEY_ID")),
		StoreDir:         firstNonEmpty(os.Getenv("STORE_DIR"), "store"),
		GeminiAPIKey:     firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY")),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ScriptProvider:   strings.ToLower(firstNonEmpty(os.Getenv("SCRIPT_PROVIDER"), "gemini")),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoice:  firstNonEmpty(os.Getenv("ELEVENLABS_VOICE_ID"), "21m00Tcm4TlvDq8ikWAM"),
		PexelsAPIKey:     os.Getenv("PEXELS_API_KEY"),
		RedisURL:         os.Getenv("REDIS_URL"),

		YouTubeClientSecrets: firstNonEmpty(os.Getenv("YOUTUBE_CLIENT_SECRETS"), "client_secret.json"),
		YouTubeToken:         firstNonEmpty(os.Getenv("YOUTUBE_TOKEN"), "token.json"),
		TikTokCookies:        os.Getenv("TIKTOK_COOKIES"),
		XConsumerKey:         os.Getenv("X_CONSUMER_KEY"),
		XConsumerSecret:      os.Getenv("X_CONSUMER_SECRET"),
		XAccessToken:         os.Getenv("X_ACCESS_TOKEN"),
		XAccessSecret:        os.Getenv("X_ACCESS_SECRET"),
		UploadPlatforms:      splitList(os.Getenv("UPLOAD_PLATFORMS")),

		BedsJSONKey:            "beds.json",
		VideosJSONKey:          "videos.json",
		ScheduleJSONKey:        "schedule.json",
		VisualHashIndexKey:     "visual_hashes.json",
		DislikedVisualsJSONKey: "disliked_visuals.json",

		BedsPrefix:    "beds/",
		VideosPrefix:  "videos/",
		TokensPrefix:  "tokens/",
		PayloadPrefix: "payload/",

		ScratchDir:       firstNonEmpty(os.Getenv("SCRATCH_DIR"), filepath.Join(os.TempDir(), "shorts-gen")),
		OutputDir:        firstNonEmpty(os.Getenv("OUTPUT_DIR"), "output"),
		RenderStrategies: append([]string(nil), captions.DefaultStrategyNames...),
		MaxWords:         3,
		MaxChars:         20,
		ShortMaxChars:    12,
		AttenuationDB:    20,
		Timeout:          5 * time.Minute,
		MatchTolerance:   time.Second,
		VisualAnchor:     strings.ToLower(firstNonEmpty(os.Getenv("VISUAL_ANCHOR"), "start")),
		FFmpegParallel:   1,
		CaptionStyles:    os.Getenv("CAPTION_STYLES_FILE"),
		TopicsFile:       firstNonEmpty(os.Getenv("TOPICS_FILE"), "topics.txt"),
		KeepSRT:          os.Getenv("KEEP_SRT") != "false",

		MaxVideos:                 50,
		MaxAge:                    72 * time.Hour,
		DislikedVisualGracePeriod: 24 * time.Hour,
		DailyGenerations:          3,
		Silent:                    true,
	}

	if v := os.Getenv("RENDER_STRATEGIES"); v != "" {
		cfg.RenderStrategies = splitList(v)
	}

	var errs []error
	intVar := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	durVar := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	intVar("CAPTION_MAX_WORDS", &cfg.MaxWords)
	intVar("CAPTION_MAX_CHARS", &cfg.MaxChars)
	intVar("CAPTION_SHORT_MAX_CHARS", &cfg.ShortMaxChars)
	intVar("FFMPEG_PARALLEL", &cfg.FFmpegParallel)
	intVar("MAX_VIDEOS", &cfg.MaxVideos)
	intVar("DAILY_GENERATIONS", &cfg.DailyGenerations)
	durVar("FFMPEG_TIMEOUT", &cfg.Timeout)
	durVar("MATCH_TOLERANCE", &cfg.MatchTolerance)
	durVar("MAX_AGE", &cfg.MaxAge)
	durVar("DISLIKED_VISUAL_GRACE_PERIOD", &cfg.DislikedVisualGracePeriod)

	if v := os.Getenv("BED_ATTENUATION_DB"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("BED_ATTENUATION_DB: %w", err))
		} else {
			cfg.AttenuationDB = f
		}
	}

	if v := os.Getenv("POSTS_CHATID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n != 0 {
			cfg.PostsChatID = n
		}
	}
	if v := os.Getenv("SILENT"); v != "" {
		cfg.Silent = v != "false" && v != "0"
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.ValidatePipeline()
}

// ValidatePipeline checks the options consumed by the media pipeline. It is
// separate from LoadConfig so the CLI can validate flag overrides.
func (c Config) ValidatePipeline() error {
	var errs []error
	if c.MaxWords < 1 {
		errs = append(errs, fmt.Errorf("max words must be >= 1, got %d", c.MaxWords))
	}
	if c.MaxChars < 1 {
		errs = append(errs, fmt.Errorf("max chars must be >= 1, got %d", c.MaxChars))
	}
	if c.ShortMaxChars < 1 {
		errs = append(errs, fmt.Errorf("short max chars must be >= 1, got %d", c.ShortMaxChars))
	}
	if c.AttenuationDB < 0 {
		errs = append(errs, fmt.Errorf("bed attenuation must be >= 0 dB, got %g", c.AttenuationDB))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ffmpeg timeout must be positive, got %s", c.Timeout))
	}
	if c.MatchTolerance < 0 {
		errs = append(errs, fmt.Errorf("match tolerance must be >= 0, got %s", c.MatchTolerance))
	}
	if c.VisualAnchor != "start" && c.VisualAnchor != "center" {
		errs = append(errs, fmt.Errorf("visual anchor must be start or center, got %q", c.VisualAnchor))
	}
	if c.FFmpegParallel < 1 {
		errs = append(errs, fmt.Errorf("ffmpeg parallelism must be >= 1, got %d", c.FFmpegParallel))
	}
	if len(c.RenderStrategies) == 0 {
		errs = append(errs, errors.New("at least one render strategy is required"))
	}
	for _, name := range c.RenderStrategies {
		if !captions.IsKnownStrategy(name) {
			errs = append(errs, fmt.Errorf("unknown render strategy %q", name))
		}
	}
	if c.ScriptProvider != "gemini" && c.ScriptProvider != "openai" {
		errs = append(errs, fmt.Errorf("SCRIPT_PROVIDER must be gemini or openai, got %q", c.ScriptProvider))
	}
	return errors.Join(errs...)
}

// ValidateService checks what the long-running bot service needs on top of the pipeline.
func (c Config) ValidateService() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
