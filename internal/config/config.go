package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config carries the knobs consumed by the core. Zero values fall back to
// the defaults below, which mirror the constants of the reference
// deployment.
type Config struct {
	// Host is the address every actor binds and dials on.
	Host string
	// BasePort anchors the deterministic port scheme (see process.ID.Port).
	BasePort uint16
	// MaxRetries bounds the attempts of a single channel send.
	MaxRetries int
	// RetryDelay is the fixed backoff between send attempts.
	RetryDelay time.Duration
	// MessageTimeout bounds each connect/write attempt and each receive.
	MessageTimeout time.Duration
	// DoneTimeout bounds one coordinator wait for a worker's DONE.
	DoneTimeout time.Duration
	// DisplayCount is the number of resource-use iterations per grant.
	DisplayCount int
	// DisplayInterval is the delay between two iterations.
	DisplayInterval time.Duration
	// LogPath is the directory for per-actor log files; empty disables them.
	LogPath string
	// Debug also mirrors file logs to the standard output.
	Debug bool
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Host:            "127.0.0.1",
		BasePort:        5000,
		MaxRetries:      3,
		RetryDelay:      100 * time.Millisecond,
		MessageTimeout:  2 * time.Second,
		DoneTimeout:     5 * time.Second,
		DisplayCount:    10,
		DisplayInterval: 1 * time.Second,
	}
}

// Represents the JSON configuration file. Durations are in milliseconds.
type configFile struct {
	Host              string `json:"Host,omitempty"`
	BasePort          uint16 `json:"BasePort,omitempty"`
	MaxRetries        int    `json:"MaxRetries,omitempty"`
	RetryDelayMs      uint32 `json:"RetryDelayMs,omitempty"`
	MessageTimeoutMs  uint32 `json:"MessageTimeoutMs,omitempty"`
	DoneTimeoutMs     uint32 `json:"DoneTimeoutMs,omitempty"`
	DisplayCount      int    `json:"DisplayCount,omitempty"`
	DisplayIntervalMs uint32 `json:"DisplayIntervalMs,omitempty"`
	LogPath           string `json:"LogPath,omitempty"`
	Debug             bool   `json:"Debug,omitempty"`
}

// Load reads a configuration file and returns the resulting configuration,
// with unset fields taking their default values.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var cf configFile
	if err := json.NewDecoder(file).Decode(&cf); err != nil {
		return Config{}, err
	}

	conf := Default()
	if cf.Host != "" {
		conf.Host = cf.Host
	}
	if cf.BasePort != 0 {
		conf.BasePort = cf.BasePort
	}
	if cf.MaxRetries != 0 {
		conf.MaxRetries = cf.MaxRetries
	}
	if cf.RetryDelayMs != 0 {
		conf.RetryDelay = time.Duration(cf.RetryDelayMs) * time.Millisecond
	}
	if cf.MessageTimeoutMs != 0 {
		conf.MessageTimeout = time.Duration(cf.MessageTimeoutMs) * time.Millisecond
	}
	if cf.DoneTimeoutMs != 0 {
		conf.DoneTimeout = time.Duration(cf.DoneTimeoutMs) * time.Millisecond
	}
	if cf.DisplayCount != 0 {
		conf.DisplayCount = cf.DisplayCount
	}
	if cf.DisplayIntervalMs != 0 {
		conf.DisplayInterval = time.Duration(cf.DisplayIntervalMs) * time.Millisecond
	}
	conf.LogPath = cf.LogPath
	conf.Debug = cf.Debug

	return conf, nil
}
