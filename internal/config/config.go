// Package config loads the process-wide, immutable configuration from
// the environment once at startup. No component reads the environment
// directly after that.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ChannelPriority orders channels for offline reporting and backfill
// batch scheduling. It never preempts live, in-order event delivery.
type ChannelPriority string

const (
	PriorityHigh   ChannelPriority = "high"
	PriorityMedium ChannelPriority = "medium"
	PriorityLow    ChannelPriority = "low"
)

// ChannelConfig describes one monitored channel.
type ChannelConfig struct {
	ChannelID   int64           `json:"channel_id"`
	ChannelName string          `json:"channel_name"`
	IsActive    bool            `json:"is_active"`
	Priority    ChannelPriority `json:"priority"`
	RateLimit   float64         `json:"rate_limit"` // messages per minute
}

// Config is the fully-resolved, immutable process configuration.
type Config struct {
	APIID         int
	APIHash       string
	Session       string
	SessionB64    string

	DataDir string
	LogLevel string

	EnableExcel     bool
	ExcelPath       string
	EnableSheets    bool
	SheetID         string
	CredentialsPath string

	ReconnectMaxAttempts int
	HealthCheckInterval  time.Duration
	DrainTimeout         time.Duration

	Channels []ChannelConfig
}

// Load binds environment variables (and, for CHANNELS_CONFIG_PATH, a
// JSON file) into a Config. Required fields (API_ID, API_HASH) produce
// an error when missing.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyCase(viper.EnvKeyCaseSensitive)

	v.SetDefault("TG_SESSION", "pf_session")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENABLE_EXCEL", false)
	v.SetDefault("ENABLE_SHEETS", false)
	v.SetDefault("RECONNECT_MAX_ATTEMPTS", 5)
	v.SetDefault("HEALTH_CHECK_INTERVAL", "5m")
	v.SetDefault("DRAIN_TIMEOUT", "30s")

	for _, key := range []string{
		"API_ID", "API_HASH", "TG_SESSION", "TG_SESSION_B64",
		"DATA_DIR", "LOG_LEVEL",
		"ENABLE_EXCEL", "EXCEL_PATH", "ENABLE_SHEETS", "SHEET_ID", "GOOGLE_CREDENTIALS_PATH",
		"RECONNECT_MAX_ATTEMPTS", "HEALTH_CHECK_INTERVAL", "DRAIN_TIMEOUT",
		"CHANNELS_CONFIG_PATH",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	apiID := v.GetInt("API_ID")
	apiHash := v.GetString("API_HASH")
	if apiID == 0 {
		return nil, fmt.Errorf("API_ID is required")
	}
	if apiHash == "" {
		return nil, fmt.Errorf("API_HASH is required")
	}

	healthInterval, err := time.ParseDuration(v.GetString("HEALTH_CHECK_INTERVAL"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEALTH_CHECK_INTERVAL: %w", err)
	}
	drainTimeout, err := time.ParseDuration(v.GetString("DRAIN_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid DRAIN_TIMEOUT: %w", err)
	}

	sheetID := v.GetString("SHEET_ID")
	credentialsPath := v.GetString("GOOGLE_CREDENTIALS_PATH")
	if sheetID != "" && credentialsPath == "" {
		return nil, fmt.Errorf("GOOGLE_CREDENTIALS_PATH is required when SHEET_ID is set")
	}

	cfg := &Config{
		APIID:                apiID,
		APIHash:              apiHash,
		Session:              v.GetString("TG_SESSION"),
		SessionB64:           v.GetString("TG_SESSION_B64"),
		DataDir:              v.GetString("DATA_DIR"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		EnableExcel:          v.GetBool("ENABLE_EXCEL"),
		ExcelPath:            v.GetString("EXCEL_PATH"),
		EnableSheets:         v.GetBool("ENABLE_SHEETS"),
		SheetID:              sheetID,
		CredentialsPath:      credentialsPath,
		ReconnectMaxAttempts: v.GetInt("RECONNECT_MAX_ATTEMPTS"),
		HealthCheckInterval:  healthInterval,
		DrainTimeout:         drainTimeout,
	}

	if path := v.GetString("CHANNELS_CONFIG_PATH"); path != "" {
		channels, err := loadChannels(path)
		if err != nil {
			return nil, err
		}
		cfg.Channels = channels
	}

	return cfg, nil
}

func loadChannels(path string) ([]ChannelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels config: %w", err)
	}

	var channels []ChannelConfig
	if err := json.Unmarshal(raw, &channels); err != nil {
		return nil, fmt.Errorf("parse channels config: %w", err)
	}

	return channels, nil
}

// SortByPriority returns channels ordered high, medium, low — for
// offline reporting and backfill batch ordering only.
func SortByPriority(channels []ChannelConfig) []ChannelConfig {
	rank := map[ChannelPriority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}
	out := make([]ChannelConfig, len(channels))
	copy(out, channels)

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rank[out[j].Priority] < rank[out[j-1].Priority]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
