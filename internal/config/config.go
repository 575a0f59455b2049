// Package config holds the server configuration: defaults, YAML/JSON
// files and BUILDINGMAP_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// DatasetURL is the Lisbon building footprints dataset the map was built for.
const DatasetURL = "https://devseed.s3.amazonaws.com/tecnico/lx_buildings_augmented.parquet"

// Config is the full server configuration.
type Config struct {
	HTTP   HTTPConfig   `json:"http" yaml:"http"`
	Source SourceConfig `json:"source" yaml:"source"`
	Decode DecodeConfig `json:"decode" yaml:"decode"`
	Derive DeriveConfig `json:"derive" yaml:"derive"`
	Render RenderConfig `json:"render" yaml:"render"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" yaml:"addr"`

	// RateLimit is the per-client request rate in requests/second (0 disables)
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
}

// SourceConfig says where the payload comes from.
type SourceConfig struct {
	// URL is http(s)://, s3://bucket/key, file:// or a local path
	URL string `json:"url" yaml:"url"`

	// CacheDir keeps a copy of remote payloads on disk (empty disables)
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 settings for s3:// URLs.
type S3Config struct {
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
	Anonymous    bool   `json:"anonymous" yaml:"anonymous"`
}

// DecodeConfig bounds the decoder.
type DecodeConfig struct {
	// MaxDecompressedMB caps an unwrapped payload (0 disables)
	MaxDecompressedMB int `json:"max_decompressed_mb" yaml:"max_decompressed_mb"`
}

// DeriveConfig names the schema fields the render attributes come from.
type DeriveConfig struct {
	NumericField     string   `json:"numeric_field" yaml:"numeric_field"`
	CategoricalField string   `json:"categorical_field" yaml:"categorical_field"`
	GeometryField    string   `json:"geometry_field" yaml:"geometry_field"`
	ExtrusionScale   float64  `json:"extrusion_scale" yaml:"extrusion_scale"`
	TextPolicy       string   `json:"text_policy" yaml:"text_policy"`
	RowFields        []string `json:"row_fields" yaml:"row_fields"`
}

// RenderConfig controls accessor behaviour.
type RenderConfig struct {
	// StrictBounds panics on out-of-range row indices instead of returning defaults
	StrictBounds bool `json:"strict_bounds" yaml:"strict_bounds"`
}

// DefaultConfig returns the configuration for the Lisbon buildings map.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:      ":8080",
			RateLimit: 50,
		},
		Source: SourceConfig{
			URL: DatasetURL,
			S3: S3Config{
				Region:    "us-east-1",
				Anonymous: true,
			},
		},
		Decode: DecodeConfig{
			MaxDecompressedMB: 1024,
		},
		Derive: DeriveConfig{
			NumericField:     "floors_ag",
			CategoricalField: "Period_con",
			GeometryField:    "GEOMETRY",
			ExtrusionScale:   9,
			TextPolicy:       "replace",
			RowFields: []string{
				"Name", "CdgPstl", "Period_con", "archetype", "tipologia",
				"_ineTEDIF", "%_heating_", "%_heatin_1", "%_heatin_2", "floors_ag",
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must be >= 0, got %v", c.HTTP.RateLimit)
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Decode.MaxDecompressedMB < 0 {
		return fmt.Errorf("decode.max_decompressed_mb must be >= 0, got %d", c.Decode.MaxDecompressedMB)
	}
	if c.Derive.NumericField == "" || c.Derive.CategoricalField == "" {
		return fmt.Errorf("derive.numeric_field and derive.categorical_field are required")
	}
	if c.Derive.ExtrusionScale <= 0 {
		return fmt.Errorf("derive.extrusion_scale must be > 0, got %v", c.Derive.ExtrusionScale)
	}
	switch strings.ToLower(c.Derive.TextPolicy) {
	case "", "replace", "strip", "windows1252", "cp1252":
	default:
		return fmt.Errorf("invalid derive.text_policy: %s (must be replace, strip or windows1252)", c.Derive.TextPolicy)
	}
	return nil
}

// MaxDecompressedBytes converts the MB cap to bytes.
func (c *Config) MaxDecompressedBytes() int64 {
	return int64(c.Decode.MaxDecompressedMB) * 1024 * 1024
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies BUILDINGMAP_* environment variables to cfg.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("BUILDINGMAP_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("BUILDINGMAP_HTTP_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BUILDINGMAP_HTTP_RATE_LIMIT: %w", err)
		}
		cfg.HTTP.RateLimit = f
	}

	if v := os.Getenv("BUILDINGMAP_SOURCE_URL"); v != "" {
		cfg.Source.URL = v
	}
	if v := os.Getenv("BUILDINGMAP_SOURCE_CACHE_DIR"); v != "" {
		cfg.Source.CacheDir = v
	}
	if v := os.Getenv("BUILDINGMAP_S3_REGION"); v != "" {
		cfg.Source.S3.Region = v
	}
	if v := os.Getenv("BUILDINGMAP_S3_ENDPOINT"); v != "" {
		cfg.Source.S3.Endpoint = v
	}
	if v := os.Getenv("BUILDINGMAP_S3_USE_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BUILDINGMAP_S3_USE_PATH_STYLE: %w", err)
		}
		cfg.Source.S3.UsePathStyle = b
	}
	if v := os.Getenv("BUILDINGMAP_S3_ANONYMOUS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BUILDINGMAP_S3_ANONYMOUS: %w", err)
		}
		cfg.Source.S3.Anonymous = b
	}

	if v := os.Getenv("BUILDINGMAP_DECODE_MAX_DECOMPRESSED_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUILDINGMAP_DECODE_MAX_DECOMPRESSED_MB: %w", err)
		}
		cfg.Decode.MaxDecompressedMB = n
	}

	if v := os.Getenv("BUILDINGMAP_NUMERIC_FIELD"); v != "" {
		cfg.Derive.NumericField = v
	}
	if v := os.Getenv("BUILDINGMAP_CATEGORICAL_FIELD"); v != "" {
		cfg.Derive.CategoricalField = v
	}
	if v := os.Getenv("BUILDINGMAP_GEOMETRY_FIELD"); v != "" {
		cfg.Derive.GeometryField = v
	}
	if v := os.Getenv("BUILDINGMAP_EXTRUSION_SCALE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BUILDINGMAP_EXTRUSION_SCALE: %w", err)
		}
		cfg.Derive.ExtrusionScale = f
	}
	if v := os.Getenv("BUILDINGMAP_ROW_FIELDS"); v != "" {
		cfg.Derive.RowFields = splitList(v)
	}
	if v := os.Getenv("BUILDINGMAP_TEXT_POLICY"); v != "" {
		cfg.Derive.TextPolicy = v
	}
	if v := os.Getenv("BUILDINGMAP_STRICT_BOUNDS"); v != "" {
		cfg.Render.StrictBounds = v == "true" || v == "1"
	}
	return nil
}

// splitList parses a comma separated env value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, f := range strings.Split(v, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
