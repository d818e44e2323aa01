package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the assessment services.
// The API server, the execution runner and the candidate client all load the
// same structure and read the fields relevant to them.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	// QuestionSeedPath points to a JSON question catalog loaded at startup.
	// Empty disables seeding.
	QuestionSeedPath string

	DockerHost       string
	ExecutionTimeout time.Duration
	CodeRunMemoryMB  int
	CodeRunCPUShares int

	// RunQueue is the Redis list execution jobs are dispatched through.
	RunQueue string
	// RunReplyTimeout bounds how long the API waits for a runner verdict.
	RunReplyTimeout time.Duration

	AIProvider   string
	OpenAIAPIKey string

	// Client-side settings for the candidate terminal.
	ServerURL        string
	CandidateToken   string
	AutosaveInterval time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ReviewEnabled reports whether AI submission review is configured.
func (c Config) ReviewEnabled() bool {
	return c.AIProvider != "" && c.AIProvider != "none" && c.OpenAIAPIKey != ""
}

// Load reads configuration values from environment variables and an optional
// .env file. Variables are prefixed with ASSESS, e.g. ASSESS_DATABASE_URL.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ASSESS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Hirecraft Assess")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("run.queue", "assess:run:jobs")
	v.SetDefault("run.reply_timeout", "30s")
	v.SetDefault("autosave.interval", "30s")
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("ai.provider", "none")

	replyTimeout, err := time.ParseDuration(v.GetString("run.reply_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid run reply timeout: %w", err)
	}

	autosaveInterval, err := time.ParseDuration(v.GetString("autosave.interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid autosave interval: %w", err)
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		QuestionSeedPath: v.GetString("question.seed_path"),
		DockerHost:       v.GetString("docker_host"),
		ExecutionTimeout: time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:  v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares: v.GetInt("code_run_cpu_shares"),
		RunQueue:         v.GetString("run.queue"),
		RunReplyTimeout:  replyTimeout,
		AIProvider:       strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		ServerURL:        v.GetString("server.url"),
		CandidateToken:   v.GetString("candidate.token"),
		AutosaveInterval: autosaveInterval,
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}
