package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all meetscribe environment variables.
const EnvPrefix = "MEETSCRIBE_"

// Config holds all application configuration. Secrets (API keys, webhook
// URLs) are loaded exclusively from environment variables and never appear in
// the config file.
type Config struct {
	ListenAddr            string        `yaml:"listen_addr"`
	DBPath                string        `yaml:"db_path"`
	DatabaseURL           string        `yaml:"database_url"`
	UploadDir             string        `yaml:"upload_dir"`
	ReportsDir            string        `yaml:"reports_dir"`
	FlushEvery            int           `yaml:"flush_every"`
	HeartbeatEvery        int           `yaml:"heartbeat_every"`
	SampleRate            int           `yaml:"sample_rate"`
	Transcription         Transcription `yaml:"transcription"`
	Summarization         Summarization `yaml:"summarization"`
	QAModel               string        `yaml:"qa_model"`
	GDriveFolderID        string        `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string        `yaml:"google_credentials_file"`
	Workers               int           `yaml:"workers"`
	FinalizeTimeout       string        `yaml:"finalize_timeout"`
	LogLevel              string        `yaml:"log_level"`

	// Secrets: env vars only, never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	SlackWebhookURL string `yaml:"-"`
}

type Transcription struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type Summarization struct {
	Model   string            `yaml:"model"`
	Presets map[string]Preset `yaml:"presets"`
}

type Preset struct {
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
	UserTemplate string `yaml:"user_template"`
	Model        string `yaml:"model"`
}

func defaults() Config {
	return Config{
		ListenAddr:     ":8000",
		DBPath:         "data/meetscribe.db",
		UploadDir:      "uploads",
		ReportsDir:     "reports",
		FlushEvery:     10,
		HeartbeatEvery: 30,
		SampleRate:     16000,
		Transcription: Transcription{
			Provider: "deepgram",
			Model:    "nova-2",
			Language: "en",
		},
		Summarization: Summarization{
			Model:   "openai/gpt-4o-mini",
			Presets: map[string]Preset{"default": DefaultPreset()},
		},
		QAModel:               "openai/gpt-4o-mini",
		GoogleCredentialsFile: "./service-account.json",
		Workers:               4,
		FinalizeTimeout:       "5m",
		LogLevel:              "info",
	}
}

// DefaultPreset is the five-section meeting summary prompt used when no
// presets are configured.
func DefaultPreset() Preset {
	return Preset{
		Description: "general meeting notes",
		SystemPrompt: `You are an expert meeting assistant. Summarize the meeting transcript using exactly these sections:

1. Context: a 1-2 sentence description of the meeting's purpose.
2. Key Points Discussed: bullet points of the main topics.
3. Decisions / Agreements: bullet points, or "No explicit decisions made." if none.
4. Action Items: bullet points in the form "<task> (Owner: <name>)", or "(Owner not specified)" when unclear.
5. Overall Outcome / Tone: one or two sentences.

Rules: use only information present in the transcript. Do not fabricate names, numbers, dates or decisions.`,
		UserTemplate: "Meeting date: {{date}}\n\nTranscript:\n{{transcript}}",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedFinalizeTimeout returns FinalizeTimeout as a time.Duration, falling
// back to five minutes if the value is invalid.
func (c *Config) ParsedFinalizeTimeout() time.Duration {
	d, err := time.ParseDuration(c.FinalizeTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// SlogLevel maps LogLevel onto a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// APIKey returns the secret for an LLM or transcription provider name.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	case "deepgram":
		return c.DeepgramAPIKey
	default:
		return ""
	}
}

func applyEnvOverrides(cfg *Config) {
	stringOverrides := map[string]*string{
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"DB_PATH":                 &cfg.DBPath,
		"DATABASE_URL":            &cfg.DatabaseURL,
		"UPLOAD_DIR":              &cfg.UploadDir,
		"REPORTS_DIR":             &cfg.ReportsDir,
		"TRANSCRIPTION_PROVIDER":  &cfg.Transcription.Provider,
		"TRANSCRIPTION_MODEL":     &cfg.Transcription.Model,
		"TRANSCRIPTION_LANGUAGE":  &cfg.Transcription.Language,
		"SUMMARIZATION_MODEL":     &cfg.Summarization.Model,
		"QA_MODEL":                &cfg.QAModel,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
		"FINALIZE_TIMEOUT":        &cfg.FinalizeTimeout,
		"LOG_LEVEL":               &cfg.LogLevel,
	}
	for key, dst := range stringOverrides {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	intOverrides := map[string]*int{
		"FLUSH_EVERY":     &cfg.FlushEvery,
		"HEARTBEAT_EVERY": &cfg.HeartbeatEvery,
		"SAMPLE_RATE":     &cfg.SampleRate,
		"WORKERS":         &cfg.Workers,
	}
	for key, dst := range intOverrides {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.SlackWebhookURL = os.Getenv(EnvPrefix + "SLACK_WEBHOOK_URL")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcription.Provider {
	case "deepgram", "openai":
		if cfg.APIKey(cfg.Transcription.Provider) == "" {
			warnings = append(warnings, fmt.Sprintf("%s API key not configured; transcription will fail. Set %s%s_API_KEY.",
				cfg.Transcription.Provider, EnvPrefix, strings.ToUpper(cfg.Transcription.Provider)))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcription provider %q; using deepgram.", cfg.Transcription.Provider))
		cfg.Transcription.Provider = "deepgram"
	}

	if len(cfg.Summarization.Presets) == 0 {
		cfg.Summarization.Presets = map[string]Preset{"default": DefaultPreset()}
	}
	if provider, _, ok := strings.Cut(cfg.Summarization.Model, "/"); ok && cfg.APIKey(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("%s API key not configured; meeting summaries will fail. Set %s%s_API_KEY.",
			provider, EnvPrefix, strings.ToUpper(provider)))
	}

	if cfg.FlushEvery <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid flush_every %d; using 10.", cfg.FlushEvery))
		cfg.FlushEvery = 10
	}
	if cfg.HeartbeatEvery <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid heartbeat_every %d; using 30.", cfg.HeartbeatEvery))
		cfg.HeartbeatEvery = 30
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if d, err := time.ParseDuration(cfg.FinalizeTimeout); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid finalize_timeout %q; using default 5m.", cfg.FinalizeTimeout))
	}
	if cfg.SlackWebhookURL == "" {
		warnings = append(warnings, "Slack webhook not configured; meeting notifications are disabled. Set "+EnvPrefix+"SLACK_WEBHOOK_URL.")
	}

	return warnings
}
