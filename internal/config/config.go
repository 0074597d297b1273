// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Service       ServiceConfig
	Script        ScriptConfig
	Turn          TurnConfig
	Classifier    ClassifierConfig
	STT           STTConfig
	TTS           TTSConfig
	Kafka         KafkaConfig
	Redis         RedisConfig
	Limits        LimitsConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	GRPCPort  string
	HTTPPort  string
}

type ScriptConfig struct {
	Path string
}

// TurnConfig holds the silence thresholds that end a candidate's turn.
type TurnConfig struct {
	ShortSilence time.Duration
	LongSilence  time.Duration
	TickInterval time.Duration
	MergeOverlap bool
	FlushTimeout time.Duration

	// PlaybackTimeout is the grace before an unfinished prompt is abandoned.
	PlaybackTimeout time.Duration
}

type ClassifierConfig struct {
	Provider   string // "bedrock" or "mock"
	Timeout    time.Duration
	MaxRetries int
	Region     string
	ModelID    string
	MemoSize   int
}

type STTConfig struct {
	Provider       string // "google" or "mock"
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	Model          string
}

type TTSConfig struct {
	Provider     string // "elevenlabs" or "mock"
	APIKey       string
	VoiceID      string
	Model        string
	OutputFormat string
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicTurn    string
	TopicSummary string
	Principal    string
}

type RedisConfig struct {
	Enabled bool
	Addr    string
	TTL     time.Duration
	Prefix  string
}

// LimitsConfig bounds a single call.
type LimitsConfig struct {
	MaxAudioBytes   int64
	MaxCallDuration time.Duration
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration. Unset or unparsable values fall back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-screening-call")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Script: ScriptConfig{
			Path: envOrDefault("SCRIPT_PATH", "configs/screening.yaml"),
		},
		Turn: TurnConfig{
			ShortSilence:    envOrDefaultDuration("TURN_SHORT_SILENCE", 200*time.Millisecond),
			LongSilence:     envOrDefaultDuration("TURN_LONG_SILENCE", 8*time.Second),
			TickInterval:    envOrDefaultDuration("TURN_TICK_INTERVAL", 20*time.Millisecond),
			MergeOverlap:    envOrDefaultBool("TURN_MERGE_OVERLAP", true),
			FlushTimeout:    envOrDefaultDuration("TURN_FLUSH_TIMEOUT", 10*time.Second),
			PlaybackTimeout: envOrDefaultDuration("TURN_PLAYBACK_TIMEOUT", 5*time.Second),
		},
		Classifier: ClassifierConfig{
			Provider:   envOrDefault("CLASSIFIER_PROVIDER", "mock"),
			Timeout:    envOrDefaultDuration("CLASSIFIER_TIMEOUT", 3*time.Second),
			MaxRetries: envOrDefaultInt("CLASSIFIER_MAX_RETRIES", 2),
			Region:     envOrDefault("AWS_REGION", "us-east-1"),
			ModelID:    envOrDefault("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
			MemoSize:   envOrDefaultInt("CLASSIFIER_MEMO_SIZE", 1024),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 8000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "MULAW"),
			Model:          envOrDefault("STT_MODEL", "phone_call"),
		},
		TTS: TTSConfig{
			Provider:     envOrDefault("TTS_PROVIDER", "mock"),
			APIKey:       os.Getenv("ELEVENLABS_API_KEY"),
			VoiceID:      envOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
			Model:        envOrDefault("ELEVENLABS_MODEL", "eleven_flash_v2"),
			OutputFormat: envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "ulaw_8000"),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicTurn:    envOrDefault("KAFKA_TOPIC_TURN", "screening.turn"),
			TopicSummary: envOrDefault("KAFKA_TOPIC_SUMMARY", "screening.summary"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Redis: RedisConfig{
			Enabled: envOrDefaultBool("REDIS_ENABLED", false),
			Addr:    envOrDefault("REDIS_ADDR", "localhost:6379"),
			TTL:     envOrDefaultDuration("REDIS_TTL", 7*24*time.Hour),
			Prefix:  envOrDefault("REDIS_PREFIX", "screening"),
		},
		Limits: LimitsConfig{
			MaxAudioBytes:   envOrDefaultInt64("CALL_MAX_AUDIO_BYTES", 16*1024*1024),
			MaxCallDuration: envOrDefaultDuration("CALL_MAX_DURATION", 30*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
