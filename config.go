package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kwv/reskin/relay"
	"github.com/kwv/reskin/scene"
)

var errConfigNotFound = errors.New("config file not found")

// ServiceConfig is the reskin.yaml service configuration.
type ServiceConfig struct {
	HTTP      HTTPConfig      `yaml:"http"`
	MQTT      relay.Config    `yaml:"mqtt"`
	Viewer    ViewerConfig    `yaml:"viewer"`
	Assets    AssetsConfig    `yaml:"assets"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Materials MaterialsConfig `yaml:"materials"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port           int             `yaml:"port" validate:"gte=1,lte=65535"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig is a per-client request budget. Limit 0 disables limiting.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit" validate:"gte=0"`
	Window time.Duration `yaml:"window"`
}

// ViewerConfig carries the AR presentation settings handed to viewers.
type ViewerConfig struct {
	EnableAR       bool          `yaml:"enableAR" json:"enableAR"`
	ARPollInterval time.Duration `yaml:"arPollInterval" json:"arPollInterval"`
	ARModes        string        `yaml:"arModes" json:"arModes"`
	ARScale        string        `yaml:"arScale" json:"arScale" validate:"oneof=fixed auto"`
	ARPlacement    string        `yaml:"arPlacement" json:"arPlacement" validate:"oneof=floor wall"`
	XREnvironment  bool          `yaml:"xrEnvironment" json:"xrEnvironment"`
}

// AssetsConfig configures where models and texture maps come from.
type AssetsConfig struct {
	Dir              string        `yaml:"dir"`
	BaseURL          string        `yaml:"baseURL" validate:"omitempty,url"`
	S3               AssetS3Config `yaml:"s3"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	MaxRetries       int           `yaml:"maxRetries" validate:"gte=0"`
	MaxTextureSize   int           `yaml:"maxTextureSize" validate:"gte=0"`
	TextureCacheSize int           `yaml:"textureCacheSize" validate:"gte=0"`
	Concurrency      int           `yaml:"concurrency" validate:"gte=0"`
}

// AssetS3Config enables s3:// asset URLs.
type AssetS3Config struct {
	Enabled        bool `yaml:"enabled"`
	scene.S3Config `yaml:",inline"`
}

// CatalogConfig points at the furniture JSON file.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// MaterialsConfig points at the material library. An empty path selects
// the embedded default library.
type MaterialsConfig struct {
	Path string `yaml:"path"`
}

// DefaultServiceConfig returns the settings used for absent keys.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		HTTP: HTTPConfig{
			Port:      8080,
			RateLimit: RateLimitConfig{Limit: 600, Window: time.Minute},
		},
		Viewer: ViewerConfig{
			EnableAR:       true,
			ARPollInterval: scene.DefaultPollInterval,
			ARModes:        "webxr",
			ARScale:        "fixed",
			ARPlacement:    "floor",
		},
		Assets: AssetsConfig{
			FetchTimeout:     scene.DefaultFetchTimeout,
			MaxRetries:       scene.DefaultMaxRetries,
			MaxTextureSize:   scene.DefaultMaxTextureSize,
			TextureCacheSize: scene.DefaultTextureCacheSize,
			Concurrency:      scene.DefaultTextureConcurrency,
		},
	}
}

// LoadServiceConfig reads path over the defaults, applies environment
// overrides and validates the result.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads .env from the working directory when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: reading .env: %v", err)
	}
}

func (c *ServiceConfig) applyEnv() {
	c.HTTP.Port = getIntEnv("RESKIN_HTTP_PORT", c.HTTP.Port)
	if origins := os.Getenv("RESKIN_ALLOWED_ORIGINS"); origins != "" {
		c.HTTP.AllowedOrigins = strings.Split(origins, ",")
	}
	c.Viewer.EnableAR = getBoolEnv("RESKIN_ENABLE_AR", c.Viewer.EnableAR)
	c.Assets.Dir = getEnv("RESKIN_ASSET_DIR", c.Assets.Dir)
	c.Assets.BaseURL = getEnv("RESKIN_ASSET_BASE_URL", c.Assets.BaseURL)
	c.Assets.S3.Enabled = getBoolEnv("RESKIN_S3_ENABLED", c.Assets.S3.Enabled)
	c.Assets.S3.Region = getEnv("RESKIN_S3_REGION", c.Assets.S3.Region)
	c.Assets.S3.Endpoint = getEnv("RESKIN_S3_ENDPOINT", c.Assets.S3.Endpoint)
	c.Assets.S3.PathStyle = getBoolEnv("RESKIN_S3_PATH_STYLE", c.Assets.S3.PathStyle)
	c.Catalog.Path = getEnv("RESKIN_CATALOG", c.Catalog.Path)
	c.Materials.Path = getEnv("RESKIN_MATERIALS", c.Materials.Path)
	c.MQTT = c.MQTT.Resolve()
}

// Validate checks field ranges.
func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Viewer.ARPollInterval < 0 {
		return fmt.Errorf("invalid config: viewer.arPollInterval must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return intValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}
