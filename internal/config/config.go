package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Queue      QueueConfig
	Assistant  AssistantConfig
	ElevenLabs ElevenLabsConfig
	R2         R2Config
	Limits     LimitsConfig
	Pipeline   PipelineConfig
	RateLimit  RateLimitConfig
	Gateway    GatewayConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Path string
}

type QueueConfig struct {
	Name          string
	Concurrency   int
	JobTimeout    time.Duration
	ScheduleCron  string
	SchedulerLock string
	WorkerEnabled bool
}

type AssistantConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      int // seconds
	ThreadTTL    time.Duration
	MaxHistory   int // messages kept per thread
}

type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	OutputFormat string
	Timeout      int // seconds
	MaleVoices   []string
	FemaleVoices []string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// LimiterConfig mirrors limiter.Options so it can be loaded from config.
type LimiterConfig struct {
	MaxConcurrent           int
	MinSpacing              time.Duration
	ReservoirSize           int
	ReservoirRefillAmount   int
	ReservoirRefillInterval time.Duration
}

type LimitsConfig struct {
	TTS        LimiterConfig
	Generation LimiterConfig
}

type PipelineConfig struct {
	GenerationAttempts  int
	GenerationBaseDelay time.Duration
	TTSAttempts         int
	TTSDelay            time.Duration
	ConversionAttempts  int
	ConversionDelay     time.Duration
	RoundDelay          time.Duration
	EpisodeDelay        time.Duration
	StageTimeout        time.Duration
	MaxConversionChunks int
	PodcastBatchSize    int
	UploadDir           string
}

type RateLimitConfig struct {
	SubmissionsPerHour int
}

type GatewayConfig struct {
	Enabled bool
}

// Load reads config.yaml from the working directory or ./config, if present.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. The file must exist when path is set.
func LoadFile(path string) (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("ASSISTANT_API_KEY")
	readSecret("ELEVENLABS_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("database.path", "DATABASE_PATH")
	_ = viper.BindEnv("queue.name", "QUEUE_NAME")
	_ = viper.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = viper.BindEnv("queue.job_timeout", "QUEUE_JOB_TIMEOUT")
	_ = viper.BindEnv("queue.schedule_cron", "QUEUE_SCHEDULE_CRON")
	_ = viper.BindEnv("queue.scheduler_lock", "QUEUE_SCHEDULER_LOCK")
	_ = viper.BindEnv("queue.worker_enabled", "QUEUE_WORKER_ENABLED")
	_ = viper.BindEnv("assistant.api_key", "ASSISTANT_API_KEY")
	_ = viper.BindEnv("assistant.base_url", "ASSISTANT_BASE_URL")
	_ = viper.BindEnv("assistant.model", "ASSISTANT_MODEL")
	_ = viper.BindEnv("assistant.max_history", "ASSISTANT_MAX_HISTORY")
	_ = viper.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	_ = viper.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")
	_ = viper.BindEnv("elevenlabs.model", "ELEVENLABS_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("database.path", "./data/episodes.db")

	// Queue defaults
	viper.SetDefault("queue.name", "chat-simulation")
	viper.SetDefault("queue.concurrency", 4)
	viper.SetDefault("queue.job_timeout", "2h")
	viper.SetDefault("queue.schedule_cron", "")
	viper.SetDefault("queue.scheduler_lock", "./data/scheduler.lock")
	viper.SetDefault("queue.worker_enabled", true)

	// Assistant defaults
	viper.SetDefault("assistant.base_url", "https://api.openai.com/v1")
	viper.SetDefault("assistant.model", "gpt-4o-mini")
	viper.SetDefault("assistant.system_prompt", "You are a scriptwriter for educational audio episodes. Always answer with a single valid JSON object and nothing else.")
	viper.SetDefault("assistant.timeout", 180)
	viper.SetDefault("assistant.thread_ttl", "168h")
	viper.SetDefault("assistant.max_history", 40)

	// ElevenLabs defaults
	viper.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	viper.SetDefault("elevenlabs.model", "eleven_multilingual_v2")
	viper.SetDefault("elevenlabs.output_format", "mp3_44100_128")
	viper.SetDefault("elevenlabs.timeout", 120)
	viper.SetDefault("elevenlabs.male_voices", []string{"pNInz6obpgDQGcFmaJgB", "TxGEqnHWrfWFTfGW9XjX", "VR6AewLTigWG4xSOukaG"})
	viper.SetDefault("elevenlabs.female_voices", []string{"21m00Tcm4TlvDq8ikWAM", "EXAVITQu4vr4xnSDxMaL", "MF3mGyEYCl7XYWbV9V6O"})

	// Limiter defaults, one limiter per external service
	viper.SetDefault("limits.tts.max_concurrent", 5)
	viper.SetDefault("limits.tts.min_spacing", "0s")
	viper.SetDefault("limits.tts.reservoir_size", 0)
	viper.SetDefault("limits.tts.reservoir_refill_amount", 0)
	viper.SetDefault("limits.tts.reservoir_refill_interval", "0s")
	viper.SetDefault("limits.generation.max_concurrent", 2)
	viper.SetDefault("limits.generation.min_spacing", "200ms")
	viper.SetDefault("limits.generation.reservoir_size", 10)
	viper.SetDefault("limits.generation.reservoir_refill_amount", 10)
	viper.SetDefault("limits.generation.reservoir_refill_interval", "1m")

	// Pipeline defaults
	viper.SetDefault("pipeline.generation_attempts", 5)
	viper.SetDefault("pipeline.generation_base_delay", "500ms")
	viper.SetDefault("pipeline.tts_attempts", 3)
	viper.SetDefault("pipeline.tts_delay", "10s")
	viper.SetDefault("pipeline.conversion_attempts", 5)
	viper.SetDefault("pipeline.conversion_delay", "3s")
	viper.SetDefault("pipeline.round_delay", "100ms")
	viper.SetDefault("pipeline.episode_delay", "100ms")
	viper.SetDefault("pipeline.stage_timeout", "5m")
	viper.SetDefault("pipeline.max_conversion_chunks", 20)
	viper.SetDefault("pipeline.podcast_batch_size", 5)
	viper.SetDefault("pipeline.upload_dir", "chat-simulation/episode")

	viper.SetDefault("ratelimit.submissions_per_hour", 30)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", true)

	if err := viper.ReadInConfig(); err != nil && path != "" {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Queue: QueueConfig{
			Name:          viper.GetString("queue.name"),
			Concurrency:   viper.GetInt("queue.concurrency"),
			JobTimeout:    viper.GetDuration("queue.job_timeout"),
			ScheduleCron:  viper.GetString("queue.schedule_cron"),
			SchedulerLock: viper.GetString("queue.scheduler_lock"),
			WorkerEnabled: viper.GetBool("queue.worker_enabled"),
		},
		Assistant: AssistantConfig{
			APIKey:       viper.GetString("assistant.api_key"),
			BaseURL:      viper.GetString("assistant.base_url"),
			Model:        viper.GetString("assistant.model"),
			SystemPrompt: viper.GetString("assistant.system_prompt"),
			Timeout:      viper.GetInt("assistant.timeout"),
			ThreadTTL:    viper.GetDuration("assistant.thread_ttl"),
			MaxHistory:   viper.GetInt("assistant.max_history"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:       viper.GetString("elevenlabs.api_key"),
			BaseURL:      viper.GetString("elevenlabs.base_url"),
			Model:        viper.GetString("elevenlabs.model"),
			OutputFormat: viper.GetString("elevenlabs.output_format"),
			Timeout:      viper.GetInt("elevenlabs.timeout"),
			MaleVoices:   viper.GetStringSlice("elevenlabs.male_voices"),
			FemaleVoices: viper.GetStringSlice("elevenlabs.female_voices"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Limits: LimitsConfig{
			TTS:        loadLimiter("limits.tts"),
			Generation: loadLimiter("limits.generation"),
		},
		Pipeline: PipelineConfig{
			GenerationAttempts:  viper.GetInt("pipeline.generation_attempts"),
			GenerationBaseDelay: viper.GetDuration("pipeline.generation_base_delay"),
			TTSAttempts:         viper.GetInt("pipeline.tts_attempts"),
			TTSDelay:            viper.GetDuration("pipeline.tts_delay"),
			ConversionAttempts:  viper.GetInt("pipeline.conversion_attempts"),
			ConversionDelay:     viper.GetDuration("pipeline.conversion_delay"),
			RoundDelay:          viper.GetDuration("pipeline.round_delay"),
			EpisodeDelay:        viper.GetDuration("pipeline.episode_delay"),
			StageTimeout:        viper.GetDuration("pipeline.stage_timeout"),
			MaxConversionChunks: viper.GetInt("pipeline.max_conversion_chunks"),
			PodcastBatchSize:    viper.GetInt("pipeline.podcast_batch_size"),
			UploadDir:           viper.GetString("pipeline.upload_dir"),
		},
		RateLimit: RateLimitConfig{
			SubmissionsPerHour: viper.GetInt("ratelimit.submissions_per_hour"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}

func loadLimiter(prefix string) LimiterConfig {
	return LimiterConfig{
		MaxConcurrent:           viper.GetInt(prefix + ".max_concurrent"),
		MinSpacing:              viper.GetDuration(prefix + ".min_spacing"),
		ReservoirSize:           viper.GetInt(prefix + ".reservoir_size"),
		ReservoirRefillAmount:   viper.GetInt(prefix + ".reservoir_refill_amount"),
		ReservoirRefillInterval: viper.GetDuration(prefix + ".reservoir_refill_interval"),
	}
}
