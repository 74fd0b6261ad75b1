package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv keeps the caller's environment out of Load.
func clearEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "MOMENTCAST_MODEL", "TELEGRAM_BOT_TOKEN", "NATS_URL", "MOMENTCAST_PUBLIC_BASE_URL"} {
		t.Setenv(k, "")
	}
}

func configFile(t *testing.T, name string, cfg *Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if cfg != nil {
		require.NoError(t, Save(path, cfg))
	}
	return path
}

func TestLoadCreatesDefaults(t *testing.T) {
	clearEnv(t)
	path := configFile(t, "config.json", nil)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []time.Duration{75 * time.Second, 60 * time.Second, 45 * time.Second}, cfg.CaptureOffsets())
	assert.Equal(t, 3*time.Second, cfg.ClipLength())
	assert.Equal(t, 10*time.Minute, cfg.IdleAfter())
	assert.Equal(t, "file", cfg.Media.Backend)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	in := defaults()
	in.DataDir = "/srv/momentcast"
	in.LLM.APIKey = "sk-round-trip"
	in.LLM.Temperature = 0.5
	in.LLM.TimeoutSeconds = 12
	in.Capture.OffsetsSeconds = []int{30, 15}
	in.NATS.URL = "nats://127.0.0.1:4222"
	in.Notify.Targets = []string{"telegram:42", "log:"}

	for _, name := range []string{"config.json", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := configFile(t, name, in)
			assert.NoFileExists(t, path+".tmp")

			out, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, in, out)
			assert.Equal(t, 12*time.Second, out.LLMTimeout())
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	var cfg Config
	cfg.Capture.OffsetsSeconds = []int{0, -5, 20}
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 120*time.Second, cfg.CaptureTimeout())
	assert.Equal(t, []time.Duration{20 * time.Second}, cfg.CaptureOffsets())
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
	require.NoError(t, Save(path, &Config{LogLevel: "warn"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "warn", m["log_level"])
}

func TestListValues(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "sk-secret-key-1234"
	cfg.Telegram.Token = "bot-token-abcd"

	plain, err := ListValues(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-key-1234", plain["llm.api_key"])
	assert.Equal(t, float64(4), plain["max_concurrent"])

	masked, err := ListValues(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, "***1234", masked["llm.api_key"])
	assert.Equal(t, "***abcd", masked["telegram.token"])
	assert.Equal(t, "gpt-4o-mini", masked["llm.model"])
}

func TestGetValue(t *testing.T) {
	cfg := defaults()
	cfg.MaxConcurrent = 8
	path := configFile(t, "config.json", cfg)

	cases := map[string]any{
		"log_level":            "info",
		"max_concurrent":       float64(8),
		"capture.clip_seconds": float64(3),
		"nats.subject":         "momentcast.moments",
	}
	for key, want := range cases {
		got, err := GetValue(path, key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	_, err := GetValue(path, "nonexistent.key")
	assert.EqualError(t, err, "unknown config key: nonexistent.key")
}

func TestGetValueCreatesMissingFile(t *testing.T) {
	path := configFile(t, "config.json", nil)
	v, err := GetValue(path, "reaper.schedule")
	require.NoError(t, err)
	assert.Equal(t, "@every 1m", v)
}

func TestSetValueTyped(t *testing.T) {
	clearEnv(t)
	path := configFile(t, "config.json", defaults())

	require.NoError(t, SetValue(path, "log_level", "debug"))
	require.NoError(t, SetValue(path, "max_concurrent", "16"))
	require.NoError(t, SetValue(path, "llm.temperature", "0.3"))
	require.NoError(t, SetValue(path, "capture.offsets_seconds", "[30, 20]"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 16, cfg.MaxConcurrent)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, []time.Duration{30 * time.Second, 20 * time.Second}, cfg.CaptureOffsets())
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model, "untouched keys survive")
}

func TestSetValueTOML(t *testing.T) {
	path := configFile(t, "config.toml", defaults())
	require.NoError(t, SetValue(path, "reaper.idle_minutes", "7"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Minute, cfg.IdleAfter())
}

func TestSetValueRejects(t *testing.T) {
	path := configFile(t, "config.json", defaults())
	assert.ErrorContains(t, SetValue(path, "capture.clip_secs", "5"), "unknown config key")

	missing := filepath.Join(t.TempDir(), "absent", "config.json")
	assert.Error(t, SetValue(missing, "log_level", "debug"))
}

func TestLoadTOMLKeepsDefaultsForUnsetKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
log_level = "debug"

[llm]
timeout_seconds = 5

[capture]
offsets_seconds = [90, 30]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout())
	assert.Equal(t, []time.Duration{90 * time.Second, 30 * time.Second}, cfg.CaptureOffsets())
	assert.Equal(t, "127.0.0.1:8787", cfg.HTTP.Listen)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse")
}

func TestLoadEnvOverrides(t *testing.T) {
	path := configFile(t, "config.json", nil)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("MOMENTCAST_MODEL", "gpt-env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-env")
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("MOMENTCAST_PUBLIC_BASE_URL", "https://cdn.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "gpt-env", cfg.LLM.Model)
	assert.Equal(t, "tg-env", cfg.Telegram.Token)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "https://cdn.example.com", cfg.Capture.PublicBaseURL)

	// Env values are never written back.
	raw, err := readRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "", Flatten(raw)["llm.api_key"])
}
