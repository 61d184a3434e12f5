package material

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// Config is the on-disk form of the material library and slot catalog.
type Config struct {
	Presets    []MaterialPreset      `yaml:"presets"`
	Categories map[string][]SlotSpec `yaml:"categories"`
}

var validate = validator.New()

// LoadConfig reads a material config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("material config not found: %s", path)
		}
		return nil, fmt.Errorf("reading material config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and field-validates a material config.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing material config YAML: %w", err)
	}
	if len(cfg.Presets) == 0 {
		return nil, configErrorf("presets", "at least one preset must be defined")
	}
	for i, p := range cfg.Presets {
		if err := validate.Struct(p); err != nil {
			return nil, configErrorf(fmt.Sprintf("presets[%d]", i), "%s", validationMessage(err))
		}
	}
	for category, slots := range cfg.Categories {
		for i, s := range slots {
			if err := validate.Struct(s); err != nil {
				return nil, configErrorf(fmt.Sprintf("%s/slots[%d]", category, i), "%s", validationMessage(err))
			}
		}
	}
	return &cfg, nil
}

// DefaultConfig returns the built-in library and catalog.
func DefaultConfig() *Config {
	cfg, err := ParseConfig(defaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded material config: %v", err))
	}
	return cfg
}

// Build cross-validates the config and returns the library and catalog.
func (c *Config) Build() (*Library, *SlotCatalog, error) {
	lib, err := NewLibrary(c.Presets)
	if err != nil {
		return nil, nil, err
	}
	slots, err := NewSlotCatalog(c.Categories, lib)
	if err != nil {
		return nil, nil, err
	}
	return lib, slots, nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s %s", strings.ToLower(fe.Field()), fieldMessage(fe)))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
