package carousel

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the on-disk configuration of the carousel tools. Durations are
// milliseconds.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Fonts  FontsConfig  `toml:"fonts"`
	Export ExportConfig `toml:"export"`
	Share  ShareConfig  `toml:"share"`
	LLM    LLMConfig    `toml:"llm"`
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// FontsConfig lists extra font directories and remote sources by family id.
// With NoSystemFonts only Dirs and the embedded Go fonts are used.
type FontsConfig struct {
	Dirs          []string          `toml:"dirs"`
	Sources       map[string]string `toml:"sources"`
	NoSystemFonts bool              `toml:"no_system_fonts"`
}

type ExportConfig struct {
	OutputDir     string `toml:"output_dir"`
	Parallelism   int    `toml:"parallelism"`
	SettleDelayMS int    `toml:"settle_delay_ms"`
	WarmupDelayMS int    `toml:"warmup_delay_ms"`
}

type ShareConfig struct {
	Command         string   `toml:"command"`
	Args            []string `toml:"args"`
	MaxBatch        int      `toml:"max_batch"`
	IntervalMS      int      `toml:"interval_ms"`
	CommandMaxFiles int      `toml:"command_max_files"`
	Handheld        *bool    `toml:"handheld"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	d := DefaultDeliveryOptions()
	return Config{
		Log: LogConfig{Level: "info"},
		Export: ExportConfig{
			OutputDir:     ".",
			Parallelism:   4,
			SettleDelayMS: 300,
			WarmupDelayMS: int(DefaultWarmupDelay / time.Millisecond),
		},
		Share: ShareConfig{
			MaxBatch:   d.MaxShareBatch,
			IntervalMS: int(d.ShareInterval / time.Millisecond),
		},
		LLM:    LLMConfig{Model: "gpt-4o-mini"},
		Server: ServerConfig{Addr: "127.0.0.1:8686"},
		Store:  StoreConfig{Path: "carousel.db"},
	}
}

// LoadConfig reads a TOML file over the defaults. A missing file yields the
// defaults. The CAROUSEL_API_KEY environment variable fills an empty API key.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("CAROUSEL_API_KEY")
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SlogLevel maps Log.Level to a slog level; unknown names mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// DeliveryOptions returns the share tuning of c.
func (c Config) DeliveryOptions() DeliveryOptions {
	d := DefaultDeliveryOptions()
	if c.Share.MaxBatch > 0 {
		d.MaxShareBatch = c.Share.MaxBatch
	}
	if c.Share.IntervalMS >= 0 {
		d.ShareInterval = time.Duration(c.Share.IntervalMS) * time.Millisecond
	}
	return d
}

// Platform builds the delivery platform c describes: an ExecPlatform when a
// share command is configured and a DirPlatform otherwise.
func (c Config) Platform() Platform {
	dir := DirPlatform{Dir: c.Export.OutputDir}
	if c.Share.Command == "" {
		return &dir
	}
	return &ExecPlatform{
		DirPlatform:      dir,
		Command:          c.Share.Command,
		Args:             c.Share.Args,
		MaxFiles:         c.Share.CommandMaxFiles,
		HandheldOverride: c.Share.Handheld,
	}
}

// Toolchain is a fully wired export pipeline.
type Toolchain struct {
	Fonts     *FontCache
	Renderer  *Renderer
	Readiness *Readiness
	Capturer  *Capturer
	Exporter  *Exporter
}

// Build wires the render and export pipeline c describes.
func (c Config) Build() *Toolchain {
	var fc *FontCache
	if c.Fonts.NoSystemFonts {
		fc = NewFontCacheDirs(c.Fonts.Dirs...)
	} else {
		fc = NewFontCache(c.Fonts.Dirs...)
	}
	for family, src := range c.Fonts.Sources {
		fc.AddSource(family, src)
	}
	r := NewRenderer(fc, nil)

	rd := NewReadiness(r, nil)
	if c.Export.Parallelism > 0 {
		rd.Parallelism = c.Export.Parallelism
	}
	rd.SettleDelay = time.Duration(c.Export.SettleDelayMS) * time.Millisecond

	cp := NewCapturer(r.Painter())
	cp.WarmupDelay = time.Duration(c.Export.WarmupDelayMS) * time.Millisecond

	exp := NewExporter(r, rd, cp, c.Platform())
	exp.Delivery = c.DeliveryOptions()
	return &Toolchain{Fonts: fc, Renderer: r, Readiness: rd, Capturer: cp, Exporter: exp}
}
