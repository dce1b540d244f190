package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is an immutable snapshot of process configuration. It is loaded
// once at startup; runtime-adjustable council membership lives in the
// settings store and is resolved per run, not here.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Council CouncilConfig `koanf:"council"`
	APIKeys APIKeyConfig  `koanf:"api_keys"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// CouncilConfig holds the boot-time defaults for council membership.
// The settings store overrides these at runtime.
type CouncilConfig struct {
	Chairman      string   `koanf:"chairman"`
	Experts       []string `koanf:"experts"`
	TitleProvider string   `koanf:"title_provider"`
}

// APIKeyConfig carries per-provider credentials. Values support ${VAR}
// substitution from the process environment.
type APIKeyConfig struct {
	Groq        string `koanf:"groq"`
	SambaNova   string `koanf:"sambanova"`
	Google      string `koanf:"google"`
	Mistral     string `koanf:"mistral"`
	Cohere      string `koanf:"cohere"`
	HuggingFace string `koanf:"huggingface"`
	OpenRouter  string `koanf:"openrouter"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml (if present) and then applies COUNCIL_-prefixed
// environment variables on top, e.g. COUNCIL_SERVER__PORT=8001.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars and defaults.
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("COUNCIL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "COUNCIL_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8001)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "./data/council.db")
	}
	if !k.Exists("council.chairman") {
		k.Set("council.chairman", "sambanova")
	}
	if !k.Exists("council.experts") {
		k.Set("council.experts", []string{"groq", "google", "mistral", "cohere"})
	}
	if !k.Exists("council.title_provider") {
		k.Set("council.title_provider", "groq")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.APIKeys.Groq = substituteEnvVars(cfg.APIKeys.Groq)
	cfg.APIKeys.SambaNova = substituteEnvVars(cfg.APIKeys.SambaNova)
	cfg.APIKeys.Google = substituteEnvVars(cfg.APIKeys.Google)
	cfg.APIKeys.Mistral = substituteEnvVars(cfg.APIKeys.Mistral)
	cfg.APIKeys.Cohere = substituteEnvVars(cfg.APIKeys.Cohere)
	cfg.APIKeys.HuggingFace = substituteEnvVars(cfg.APIKeys.HuggingFace)
	cfg.APIKeys.OpenRouter = substituteEnvVars(cfg.APIKeys.OpenRouter)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
