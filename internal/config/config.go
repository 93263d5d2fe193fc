package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/PabloGalante/oneiros/internal/domain"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

type Config struct {
	Mode Mode `mapstructure:"mode"`

	Port      string `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	LLM     LLMConfig     `mapstructure:"llm"`
	Capture CaptureConfig `mapstructure:"capture"`
	Studio  StudioConfig  `mapstructure:"studio"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

type LLMConfig struct {
	Backend  string       `mapstructure:"backend"` // "gemini" or "vertex"
	APIKey   string       `mapstructure:"api_key"`
	Project  string       `mapstructure:"project"`
	Location string       `mapstructure:"location"`
	BaseURL  string       `mapstructure:"base_url"`
	UseMock  bool         `mapstructure:"use_mock"` // true = use mock even in cloud mode
	Models   ModelsConfig `mapstructure:"models"`
}

type ModelsConfig struct {
	Transcribe string `mapstructure:"transcribe"`
	Analyze    string `mapstructure:"analyze"`
	Illustrate string `mapstructure:"illustrate"`
	Chat       string `mapstructure:"chat"`
}

type CaptureConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	ChunkSize int           `mapstructure:"chunk_size"`
	Tick      time.Duration `mapstructure:"tick"`
}

type StudioConfig struct {
	DefaultImageSize domain.ImageSize `mapstructure:"default_image_size"`
}

type HTTPConfig struct {
	CORSOrigin        string        `mapstructure:"cors_origin"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeLocal))
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("llm.backend", BackendGemini)
	v.SetDefault("llm.project", "")
	v.SetDefault("llm.location", "us-central1")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.models.transcribe", "gemini-3-flash-preview")
	v.SetDefault("llm.models.analyze", "gemini-3-flash-preview")
	v.SetDefault("llm.models.illustrate", "gemini-3-pro-image-preview")
	v.SetDefault("llm.models.chat", "gemini-3-pro-preview")

	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.chunk_size", 32*1024)
	v.SetDefault("capture.tick", "1s")

	v.SetDefault("studio.default_image_size", string(domain.DefaultImageSize))

	v.SetDefault("http.cors_origin", "*")
	v.SetDefault("http.read_header_timeout", "10s")
}

// Load reads the optional config file at path (empty means none), then the
// ONEIROS_* environment, and builds the config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ONEIROS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "ONEIROS_LLM_API_KEY", "GEMINI_API_KEY", "API_KEY")
	_ = v.BindEnv("llm.use_mock", "ONEIROS_LLM_USE_MOCK")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		imageSizeHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	switch strings.ToLower(string(cfg.Mode)) {
	case string(ModeCloud), "gcp":
		cfg.Mode = ModeCloud
	default:
		cfg.Mode = ModeLocal
	}

	// Without an explicit choice the mock is used locally.
	if !v.IsSet("llm.use_mock") {
		cfg.LLM.UseMock = cfg.Mode == ModeLocal
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate performs the minimal checks needed before wiring clients.
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case BackendGemini, BackendVertex:
	default:
		return fmt.Errorf("llm.backend must be %q or %q, got %q", BackendGemini, BackendVertex, c.LLM.Backend)
	}
	if !c.LLM.UseMock && c.LLM.Backend == BackendVertex && c.LLM.Project == "" {
		return fmt.Errorf("llm.project must be set for the vertex backend")
	}
	if c.Capture.ChunkSize <= 0 {
		return fmt.Errorf("capture.chunk_size must be positive")
	}
	if c.Capture.Tick <= 0 {
		return fmt.Errorf("capture.tick must be positive")
	}
	return nil
}

func imageSizeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(domain.ImageSize(""))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return domain.ParseImageSize(data.(string))
	}
}
