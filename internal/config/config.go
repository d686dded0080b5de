package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries the environment-driven settings shared by the api and
// worker binaries.
type Config struct {
	DatabaseURL string
	HTTPAddr    string

	PublicBaseURL string

	// AI provider (OpenAI-compatible chat completions).
	AIBaseURL        string
	AIModel          string
	AIAPIKeys        []string
	AITimeoutSeconds int
	AIContextMaxBytes int
	AICommandPrefix  string

	TokenTTLMinutes   int
	WorkerTickSeconds int
	WorkerConcurrency int

	// Outbound messaging gateway (send text/document to a chat recipient).
	GatewayURL   string
	GatewayToken string

	// Object storage for uploaded images and archived report documents.
	OSSProvider        string // "aliyun" | "local" | ""
	OSSEndpoint        string
	OSSBucket          string
	OSSBasePrefix      string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSLocalDir        string
}

// Load reads configuration from the environment. A local .env file is
// honoured when present; missing file is fine.
func Load() (Config, error) {
	_ = godotenv.Load()

	tokenTTL := getenvIntDefault("MAINAI_TOKEN_TTL_MINUTES", 15)
	if tokenTTL < 1 {
		tokenTTL = 1
	}
	if tokenTTL > 24*60 {
		tokenTTL = 24 * 60
	}

	workerTick := getenvIntDefault("MAINAI_WORKER_TICK_SECONDS", 2)
	if workerTick < 1 {
		workerTick = 1
	}

	concurrency := getenvIntDefault("MAINAI_WORKER_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}

	aiTimeout := getenvIntDefault("MAINAI_AI_TIMEOUT_SECONDS", 20)
	if aiTimeout < 5 {
		aiTimeout = 5
	}
	if aiTimeout > 60 {
		aiTimeout = 60
	}

	contextMax := getenvIntDefault("MAINAI_AI_CONTEXT_MAX_BYTES", 3000)
	if contextMax < 500 {
		contextMax = 500
	}

	cfg := Config{
		DatabaseURL:   os.Getenv("MAINAI_DATABASE_URL"),
		HTTPAddr:      getenvDefault("MAINAI_HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MAINAI_PUBLIC_BASE_URL")), "/"),

		AIBaseURL:         getenvDefault("MAINAI_AI_BASE_URL", "https://api.openai.com/v1"),
		AIModel:           getenvDefault("MAINAI_AI_MODEL", "gpt-4o-mini"),
		AIAPIKeys:         getenvCSV("MAINAI_AI_API_KEYS"),
		AITimeoutSeconds:  aiTimeout,
		AIContextMaxBytes: contextMax,
		AICommandPrefix:   getenvDefault("MAINAI_AI_COMMAND_PREFIX", "/ai"),

		TokenTTLMinutes:   tokenTTL,
		WorkerTickSeconds: workerTick,
		WorkerConcurrency: concurrency,

		GatewayURL:   strings.TrimSpace(os.Getenv("MAINAI_GATEWAY_URL")),
		GatewayToken: strings.TrimSpace(os.Getenv("MAINAI_GATEWAY_TOKEN")),

		OSSProvider:        strings.TrimSpace(os.Getenv("MAINAI_OSS_PROVIDER")),
		OSSEndpoint:        strings.TrimSpace(os.Getenv("MAINAI_OSS_ENDPOINT")),
		OSSBucket:          strings.TrimSpace(os.Getenv("MAINAI_OSS_BUCKET")),
		OSSBasePrefix:      strings.Trim(strings.TrimSpace(os.Getenv("MAINAI_OSS_BASE_PREFIX")), "/"),
		OSSAccessKeyID:     strings.TrimSpace(os.Getenv("MAINAI_OSS_ACCESS_KEY_ID")),
		OSSAccessKeySecret: strings.TrimSpace(os.Getenv("MAINAI_OSS_ACCESS_KEY_SECRET")),
		OSSLocalDir:        strings.TrimSpace(os.Getenv("MAINAI_OSS_LOCAL_DIR")),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("MAINAI_DATABASE_URL is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvCSV(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
