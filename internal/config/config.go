package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/whisper"
)

type Config struct {
	Model           string  `yaml:"model"`
	Device          string  `yaml:"device"` // auto, cpu or accelerator
	WindowLengthSec float64 `yaml:"window_length_sec"`
	HighPassHz      int     `yaml:"high_pass_hz"`
	LowPassHz       int     `yaml:"low_pass_hz"`
	Language        string  `yaml:"language"`

	Engine        string `yaml:"engine"` // cli, http or whispercpp
	ModelDir      string `yaml:"model_dir"`
	EngineProgram string `yaml:"engine_program"`
	EngineURL     string `yaml:"engine_url"`
	EngineAPIKey  string `yaml:"engine_api_key"`
	Threads       int    `yaml:"threads"`

	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	Probe   string `yaml:"probe"` // ffprobe or wav

	Workers  int      `yaml:"workers"`
	TempDir  string   `yaml:"temp_dir"`
	Verbose  bool     `yaml:"verbose"`
	Timeouts Timeouts `yaml:"timeouts"`
	Log      Log      `yaml:"log"`

	ProgressAddr string `yaml:"progress_addr"`
	MetricsFile  string `yaml:"metrics_file"`
}

// Timeouts are Go duration strings. Empty or "0" disables the limit.
type Timeouts struct {
	Probe     string `yaml:"probe"`
	Filter    string `yaml:"filter"`
	Recognize string `yaml:"recognize"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Default returns the built-in settings: the small model in 300 second
// windows with a 100-8000 Hz band-pass.
func Default() Config {
	return Config{
		Model:           "small",
		Device:          "auto",
		WindowLengthSec: 300,
		HighPassHz:      100,
		LowPassHz:       8000,
		Engine:          "cli",
		EngineProgram:   "whisper",
		FFmpeg:          "ffmpeg",
		FFprobe:         "ffprobe",
		Probe:           "ffprobe",
		Workers:         1,
		Timeouts: Timeouts{
			Probe:  "30s",
			Filter: "30m",
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load layers the defaults, the YAML file at path (if any) and the
// environment. Callers apply their own overrides and then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, apperr.New(apperr.InvalidConfig, "read config file", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, apperr.New(apperr.InvalidConfig, "parse config "+path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Model = getenv("CHUNKSCRIBE_MODEL", c.Model)
	c.Device = getenv("CHUNKSCRIBE_DEVICE", c.Device)
	c.WindowLengthSec = getenvFloat("CHUNKSCRIBE_WINDOW_SEC", c.WindowLengthSec)
	c.Language = getenv("CHUNKSCRIBE_LANGUAGE", c.Language)
	c.Engine = getenv("CHUNKSCRIBE_ENGINE", c.Engine)
	c.ModelDir = getenv("WHISPER_MODEL_DIR", c.ModelDir)
	c.EngineProgram = getenv("WHISPER_PROGRAM", c.EngineProgram)
	c.EngineURL = getenv("WHISPER_ENGINE_URL", c.EngineURL)
	c.EngineAPIKey = getenv("WHISPER_API_KEY", c.EngineAPIKey)
	c.Threads = getenvInt("WHISPER_THREADS", c.Threads)
	c.FFmpeg = getenv("FFMPEG_PATH", c.FFmpeg)
	c.FFprobe = getenv("FFPROBE_PATH", c.FFprobe)
	c.Workers = getenvInt("CHUNKSCRIBE_WORKERS", c.Workers)
	c.TempDir = getenv("CHUNKSCRIBE_TEMP_DIR", c.TempDir)
	c.Verbose = getenvBool("CHUNKSCRIBE_VERBOSE", c.Verbose)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getenv("LOG_FILE", c.Log.File)
	c.ProgressAddr = getenv("CHUNKSCRIBE_PROGRESS_ADDR", c.ProgressAddr)
	c.MetricsFile = getenv("CHUNKSCRIBE_METRICS_FILE", c.MetricsFile)
}

func invalid(format string, a ...any) error {
	return apperr.Errorf(apperr.InvalidConfig, "config", format, a...)
}

// Validate checks every field and returns the first problem as InvalidConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return invalid("model cannot be empty")
	}
	if c.Device != "auto" {
		if _, err := whisper.ParseDevice(c.Device); err != nil {
			return invalid("device: %v", err)
		}
	}
	if math.IsNaN(c.WindowLengthSec) || math.IsInf(c.WindowLengthSec, 0) {
		return invalid("window_length_sec must be a finite number")
	}
	if c.HighPassHz < 0 || c.LowPassHz < 0 {
		return invalid("filter cutoffs cannot be negative")
	}
	if c.HighPassHz > 0 && c.LowPassHz > 0 && c.HighPassHz >= c.LowPassHz {
		return invalid("high_pass_hz (%d) must be below low_pass_hz (%d)", c.HighPassHz, c.LowPassHz)
	}
	switch c.Engine {
	case "cli", "whispercpp":
	case "http":
		if c.EngineURL == "" {
			return invalid("engine_url is required for the http engine")
		}
	default:
		return invalid("unknown engine %q (want cli, http or whispercpp)", c.Engine)
	}
	switch c.Probe {
	case "ffprobe", "wav":
	default:
		return invalid("unknown probe %q (want ffprobe or wav)", c.Probe)
	}
	if c.Workers < 1 {
		return invalid("workers must be at least 1")
	}
	if c.Threads < 0 {
		return invalid("threads cannot be negative")
	}
	for name, v := range map[string]string{
		"timeouts.probe":     c.Timeouts.Probe,
		"timeouts.filter":    c.Timeouts.Filter,
		"timeouts.recognize": c.Timeouts.Recognize,
	} {
		if _, err := parseTimeout(v); err != nil {
			return invalid("%s: %v", name, err)
		}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return invalid("log.level: %v", err)
	}
	return nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

// ProbeTimeout, FilterTimeout and RecognizeTimeout return 0 for "no limit".
// Validate has already rejected malformed values.
func (c Config) ProbeTimeout() time.Duration {
	d, _ := parseTimeout(c.Timeouts.Probe)
	return d
}

func (c Config) FilterTimeout() time.Duration {
	d, _ := parseTimeout(c.Timeouts.Filter)
	return d
}

func (c Config) RecognizeTimeout() time.Duration {
	d, _ := parseTimeout(c.Timeouts.Recognize)
	return d
}

// ResolveDevice maps "auto" to accelerator when nvidia-smi is on PATH and to
// cpu otherwise. look is exec.LookPath outside tests.
func (c Config) ResolveDevice(look func(string) (string, error)) (whisper.Device, error) {
	if c.Device != "auto" {
		return whisper.ParseDevice(c.Device)
	}
	if look != nil {
		if _, err := look("nvidia-smi"); err == nil {
			return whisper.Accelerator, nil
		}
	}
	return whisper.CPU, nil
}

// String is a one-line summary for the startup log.
func (c Config) String() string {
	return fmt.Sprintf("engine=%s model=%s device=%s window=%gs band=%d-%dHz workers=%d",
		c.Engine, c.Model, c.Device, c.WindowLengthSec, c.HighPassHz, c.LowPassHz, c.Workers)
}
