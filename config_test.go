package carousel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("CAROUSEL_API_KEY", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carousel.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"

[fonts]
dirs = ["/opt/fonts"]
no_system_fonts = true

[fonts.sources]
"Bebas Neue" = "https://fonts.example.com/bebas.ttf"

[export]
output_dir = "out"
warmup_delay_ms = 0

[share]
command = "termux-share"
max_batch = 8
interval_ms = 250
handheld = true

[llm]
model = "gpt-4.1-mini"
`), 0o644))
	t.Setenv("CAROUSEL_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"/opt/fonts"}, cfg.Fonts.Dirs)
	assert.Equal(t, "https://fonts.example.com/bebas.ttf", cfg.Fonts.Sources["Bebas Neue"])
	assert.Equal(t, "out", cfg.Export.OutputDir)
	assert.Equal(t, 300, cfg.Export.SettleDelayMS, "unset keys keep defaults")
	assert.Equal(t, "from-env", cfg.LLM.APIKey)

	opts := cfg.DeliveryOptions()
	assert.Equal(t, 8, opts.MaxShareBatch)
	assert.Equal(t, 250*time.Millisecond, opts.ShareInterval)

	pf, ok := cfg.Platform().(*ExecPlatform)
	require.True(t, ok)
	assert.True(t, pf.Handheld())
	assert.Equal(t, "out", pf.Dir)

	tc := cfg.Build()
	assert.Equal(t, time.Duration(0), tc.Capturer.WarmupDelay)
	assert.Equal(t, 8, tc.Exporter.Delivery.MaxShareBatch)
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log\nlevel="), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.toml")
	cfg := DefaultConfig()
	handheld := false
	cfg.Server.Addr = ":9000"
	cfg.Share.Handheld = &handheld
	cfg.Fonts.Sources = map[string]string{"Anton": "/srv/fonts/anton.ttf"}
	require.NoError(t, cfg.Save(path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", got.Server.Addr)
	assert.Equal(t, "/srv/fonts/anton.ttf", got.Fonts.Sources["Anton"])
	require.NotNil(t, got.Share.Handheld)
	assert.False(t, *got.Share.Handheld)
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "loud": "INFO"} {
		cfg := Config{Log: LogConfig{Level: in}}
		assert.Equal(t, want, cfg.SlogLevel().String(), in)
	}
}
