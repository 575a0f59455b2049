package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "floors_ag", cfg.Derive.NumericField)
	require.Equal(t, "Period_con", cfg.Derive.CategoricalField)
	require.Equal(t, 9.0, cfg.Derive.ExtrusionScale)
	require.Equal(t, int64(1024*1024*1024), cfg.MaxDecompressedBytes())
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"no addr":        func(c *Config) { c.HTTP.Addr = "" },
		"no url":         func(c *Config) { c.Source.URL = "" },
		"zero scale":     func(c *Config) { c.Derive.ExtrusionScale = 0 },
		"bad policy":     func(c *Config) { c.Derive.TextPolicy = "latin9" },
		"negative limit": func(c *Config) { c.HTTP.RateLimit = -1 },
		"no field":       func(c *Config) { c.Derive.CategoricalField = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
source:
  url: s3://devseed/tecnico/lx_buildings_augmented.parquet
derive:
  extrusion_scale: 3.5
  text_policy: windows1252
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTP.Addr)
	require.Equal(t, "s3://devseed/tecnico/lx_buildings_augmented.parquet", cfg.Source.URL)
	require.Equal(t, 3.5, cfg.Derive.ExtrusionScale)
	require.Equal(t, "windows1252", cfg.Derive.TextPolicy)
	// untouched keys keep their defaults
	require.Equal(t, "Period_con", cfg.Derive.CategoricalField)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"derive":{"numeric_field":"levels","row_fields":["Name"]}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "levels", cfg.Derive.NumericField)
	require.Equal(t, []string{"Name"}, cfg.Derive.RowFields)
}

func TestLoadFromFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`x = 1`), 0644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BUILDINGMAP_SOURCE_URL", "file:///data/buildings.parquet")
	t.Setenv("BUILDINGMAP_EXTRUSION_SCALE", "4")
	t.Setenv("BUILDINGMAP_STRICT_BOUNDS", "true")
	t.Setenv("BUILDINGMAP_HTTP_RATE_LIMIT", "0")
	t.Setenv("BUILDINGMAP_S3_USE_PATH_STYLE", "true")
	t.Setenv("BUILDINGMAP_S3_ANONYMOUS", "0")
	t.Setenv("BUILDINGMAP_ROW_FIELDS", "Name, floors_ag,,Period_con ")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))
	require.True(t, cfg.Source.S3.UsePathStyle)
	require.False(t, cfg.Source.S3.Anonymous)
	require.Equal(t, []string{"Name", "floors_ag", "Period_con"}, cfg.Derive.RowFields)
	require.Equal(t, "file:///data/buildings.parquet", cfg.Source.URL)
	require.Equal(t, 4.0, cfg.Derive.ExtrusionScale)
	require.True(t, cfg.Render.StrictBounds)
	require.Zero(t, cfg.HTTP.RateLimit)
}

func TestLoadFromEnv_BadNumber(t *testing.T) {
	t.Setenv("BUILDINGMAP_EXTRUSION_SCALE", "nine")
	require.Error(t, LoadFromEnv(DefaultConfig()))
}

func TestLoadFromEnv_BadBool(t *testing.T) {
	t.Setenv("BUILDINGMAP_S3_ANONYMOUS", "sometimes")
	err := LoadFromEnv(DefaultConfig())
	require.ErrorContains(t, err, "BUILDINGMAP_S3_ANONYMOUS")
}
