package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Duration is a custom type that handles JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

type ServerConfig struct {
	Port         int      `json:"port"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// TranslationConfig selects the provider and tunes the chunk pipeline.
// Provider is "google" (public web endpoint, no key) or "openai".
type TranslationConfig struct {
	Provider       string   `json:"provider"`
	ChunkLimit     int      `json:"chunk_limit"`
	Cooldown       Duration `json:"cooldown"`
	PairingPolicy  string   `json:"pairing_policy"`
	MaxRetries     int      `json:"max_retries"`
	RetryDelay     Duration `json:"retry_delay"`
	SupportedLangs []string `json:"supported_languages"`
}

type GoogleConfig struct {
	Endpoint string `json:"endpoint"`
}

type OpenAIConfig struct {
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

type AppConfig struct {
	TempDir      string `json:"temp_dir"`
	OutputDir    string `json:"output_dir"`
	UploadDir    string `json:"upload_dir"`
	DatabasePath string `json:"database_path"`
}

type Config struct {
	Server      ServerConfig      `json:"server"`
	Translation TranslationConfig `json:"translation"`
	Google      GoogleConfig      `json:"google"`
	OpenAI      OpenAIConfig      `json:"openai"`
	App         AppConfig         `json:"app"`
}

func New() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
		},
		Translation: TranslationConfig{
			Provider:      "google",
			ChunkLimit:    4700,
			Cooldown:      Duration{120 * time.Second},
			PairingPolicy: "best-effort",
			MaxRetries:    3,
			RetryDelay:    Duration{2 * time.Second},
			SupportedLangs: []string{
				"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh",
				"ar", "fa", "he", "hi", "tr", "pl", "nl", "sv", "da", "no",
			},
		},
		Google: GoogleConfig{
			Endpoint: "https://translate.google.com/m",
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o",
			MaxTokens:   2048,
			Temperature: 0.4,
		},
		App: AppConfig{
			TempDir:      "tmp",
			OutputDir:    "output",
			UploadDir:    "uploads",
			DatabasePath: "bookworm.db",
		},
	}
}

func (c *Config) LoadFromFile(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) SaveToFile(filepath string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

func (c *Config) LoadFromEnv() {
	if provider := os.Getenv("TRANSLATION_PROVIDER"); provider != "" {
		c.Translation.Provider = provider
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.OpenAI.APIKey = apiKey
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.OpenAI.Model = model
	}
	if endpoint := os.Getenv("GOOGLE_TRANSLATE_ENDPOINT"); endpoint != "" {
		c.Google.Endpoint = endpoint
	}
	if port := os.Getenv("PORT"); port != "" {
		if p := parseInt(port); p > 0 {
			c.Server.Port = p
		}
	}
	if tempDir := os.Getenv("TEMP_DIR"); tempDir != "" {
		c.App.TempDir = tempDir
	}
	if outputDir := os.Getenv("OUTPUT_DIR"); outputDir != "" {
		c.App.OutputDir = outputDir
	}
	if uploadDir := os.Getenv("UPLOAD_DIR"); uploadDir != "" {
		c.App.UploadDir = uploadDir
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.App.DatabasePath = dbPath
	}
}

func parseInt(s string) int {
	var result int
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0
		}
		result = result*10 + int(ch-'0')
	}
	return result
}

// Validate rejects a provider/policy combination the pipeline cannot
// run with.
func (c *Config) Validate() error {
	switch c.Translation.Provider {
	case "google":
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai provider selected but no API key configured")
		}
	default:
		return fmt.Errorf("unknown translation provider: %s", c.Translation.Provider)
	}

	switch c.Translation.PairingPolicy {
	case "best-effort", "strict":
	default:
		return fmt.Errorf("unknown pairing policy: %s", c.Translation.PairingPolicy)
	}

	if c.Translation.ChunkLimit <= 0 {
		return fmt.Errorf("chunk limit must be positive")
	}

	return nil
}

// Load loads configuration with the following priority:
// 1. Environment variables (including a .env file, if present)
// 2. Configuration file (config.json)
// 3. Default values
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := New()

	if err := ensureConfigFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure config file: %w", err)
	}

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}

	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ensureConfigFile writes a default config.json when none exists, so a
// first run starts from something editable.
func ensureConfigFile(configPath string, cfg *Config) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	return cfg.SaveToFile(configPath)
}

// GetConfigPath returns the path to the config file
// It looks for config.json in the same directory as the executable
func GetConfigPath() string {
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		return filepath.Join(execDir, "config.json")
	}

	if pwd, err := os.Getwd(); err == nil {
		return filepath.Join(pwd, "config.json")
	}

	return "config.json"
}
