package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	DataDir       string `json:"data_dir" toml:"data_dir"`
	LogLevel      string `json:"log_level" toml:"log_level"`
	MaxConcurrent int    `json:"max_concurrent" toml:"max_concurrent"`
	LLM           struct {
		BaseURL          string  `json:"base_url" toml:"base_url"`
		APIKey           string  `json:"api_key" toml:"api_key"`
		Model            string  `json:"model" toml:"model"`
		MaxTokens        int     `json:"max_tokens" toml:"max_tokens"`
		Temperature      float32 `json:"temperature" toml:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens" toml:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve" toml:"output_reserve"`
		TimeoutSeconds   int     `json:"timeout_seconds" toml:"timeout_seconds"`
	} `json:"llm" toml:"llm"`
	Capture struct {
		FFmpegPath     string `json:"ffmpeg_path" toml:"ffmpeg_path"`
		OffsetsSeconds []int  `json:"offsets_seconds" toml:"offsets_seconds"`
		ClipSeconds    int    `json:"clip_seconds" toml:"clip_seconds"`
		TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
		PublicBaseURL  string `json:"public_base_url" toml:"public_base_url"`
	} `json:"capture" toml:"capture"`
	HTTP struct {
		Listen string `json:"listen" toml:"listen"`
	} `json:"http" toml:"http"`
	Media struct {
		// Backend is "file" or "nats".
		Backend string `json:"backend" toml:"backend"`
		Bucket  string `json:"bucket" toml:"bucket"`
	} `json:"media" toml:"media"`
	NATS struct {
		URL     string `json:"url" toml:"url"`
		Subject string `json:"subject" toml:"subject"`
	} `json:"nats" toml:"nats"`
	Reaper struct {
		Schedule    string `json:"schedule" toml:"schedule"`
		IdleMinutes int    `json:"idle_minutes" toml:"idle_minutes"`
	} `json:"reaper" toml:"reaper"`
	Telegram struct {
		Token string `json:"token" toml:"token"`
	} `json:"telegram" toml:"telegram"`
	Notify struct {
		Targets []string `json:"targets" toml:"targets"`
	} `json:"notify" toml:"notify"`
}

// DefaultPath is ~/.momentcast/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".momentcast", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".momentcast"),
		MaxConcurrent: 4,
	}
	cfg.LogLevel = "info"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 1500
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 2048
	cfg.LLM.TimeoutSeconds = 30
	cfg.Capture.FFmpegPath = "ffmpeg"
	cfg.Capture.OffsetsSeconds = []int{75, 60, 45}
	cfg.Capture.ClipSeconds = 3
	cfg.Capture.TimeoutSeconds = 120
	cfg.Capture.PublicBaseURL = "http://127.0.0.1:8787"
	cfg.HTTP.Listen = "127.0.0.1:8787"
	cfg.Media.Backend = "file"
	cfg.Media.Bucket = "MOMENTCAST_MEDIA"
	cfg.NATS.Subject = "momentcast.moments"
	cfg.Reaper.Schedule = "@every 1m"
	cfg.Reaper.IdleMinutes = 10
	return cfg
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, v any) error {
	if isTOML(path) {
		return toml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func marshal(path string, v any) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("MOMENTCAST_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.NATS.URL = natsURL
	}
	if base := os.Getenv("MOMENTCAST_PUBLIC_BASE_URL"); base != "" {
		cfg.Capture.PublicBaseURL = base
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// LLMTimeout is the per-call classifier timeout.
func (c *Config) LLMTimeout() time.Duration {
	return seconds(c.LLM.TimeoutSeconds, 30)
}

// CaptureOffsets converts the configured offsets to durations.
func (c *Config) CaptureOffsets() []time.Duration {
	out := make([]time.Duration, 0, len(c.Capture.OffsetsSeconds))
	for _, s := range c.Capture.OffsetsSeconds {
		if s > 0 {
			out = append(out, time.Duration(s)*time.Second)
		}
	}
	return out
}

func (c *Config) ClipLength() time.Duration {
	return seconds(c.Capture.ClipSeconds, 3)
}

func (c *Config) CaptureTimeout() time.Duration {
	return seconds(c.Capture.TimeoutSeconds, 120)
}

func (c *Config) IdleAfter() time.Duration {
	if c.Reaper.IdleMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Reaper.IdleMinutes) * time.Minute
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// ToMap converts cfg to a generic nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns the flattened config, optionally with secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// readRaw loads the file at path as a nested map, keeping keys the Config
// struct does not know about.
func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := unmarshal(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// GetValue returns one dotted key from the config file, creating the file
// with defaults when it is missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(raw)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets one known dotted key in an existing config file. Values that
// parse as JSON (numbers, booleans, arrays) are stored typed; anything else
// is stored as a string.
func SetValue(path, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	raw, err := readRaw(path)
	if err != nil {
		return err
	}
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	// TOML distinguishes integers from floats.
	if f, ok := parsed.(float64); ok && isTOML(path) && f == math.Trunc(f) {
		parsed = int64(f)
	}
	flat := Flatten(raw)
	flat[key] = parsed
	data, err := marshal(path, Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}
