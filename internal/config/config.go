package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Audio     AudioConfig     `yaml:"audio"`
	Backend   BackendConfig   `yaml:"backend"`
	Session   SessionConfig   `yaml:"session"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InputConfig contains push-to-talk button configuration
type InputConfig struct {
	GPIOChip           string `yaml:"gpio_chip"`
	ButtonOffset       int    `yaml:"button_offset"`
	ActiveLow          bool   `yaml:"active_low"`
	DebounceIntervalMs int    `yaml:"debounce_interval_ms"`
	IdlePollIntervalMs int    `yaml:"idle_poll_interval_ms"`
}

// IndicatorConfig contains status LED configuration
type IndicatorConfig struct {
	Enabled         bool   `yaml:"enabled"`
	GPIOChip        string `yaml:"gpio_chip"`
	LEDOffset       int    `yaml:"led_offset"`
	BlinkIntervalMs int    `yaml:"blink_interval_ms"`
}

// AudioConfig contains audio capture parameters
type AudioConfig struct {
	SampleRate   int    `yaml:"sample_rate"`
	FrameSamples int    `yaml:"frame_samples"`
	WarmupFrames int    `yaml:"warmup_frames"`
	Device       string `yaml:"device"`
}

// BackendConfig contains backend discovery configuration
type BackendConfig struct {
	ServiceName     string `yaml:"service_name"`
	Domain          string `yaml:"domain"`
	FallbackAddress string `yaml:"fallback_address"`
	ResolveAttempts int    `yaml:"resolve_attempts"`
	ResolveTimeoutS int    `yaml:"resolve_timeout_s"`
	ResolveBackoffS int    `yaml:"resolve_backoff_s"`
}

// SessionConfig contains utterance session timing parameters
type SessionConfig struct {
	GracePeriodMs       int `yaml:"grace_period_ms"`
	AckPollTimeoutMs    int `yaml:"ack_poll_timeout_ms"`
	ProcessingDeadlineS int `yaml:"processing_deadline_s"`
}

// HTTPConfig contains diagnostics HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input config: %w", err)
	}

	if err := c.Indicator.Validate(); err != nil {
		return fmt.Errorf("indicator config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates input configuration
func (i *InputConfig) Validate() error {
	if i.GPIOChip == "" {
		return fmt.Errorf("gpio_chip cannot be empty")
	}

	if i.ButtonOffset < 0 {
		return fmt.Errorf("button_offset cannot be negative, got %d", i.ButtonOffset)
	}

	if i.DebounceIntervalMs < 1 {
		return fmt.Errorf("debounce_interval_ms must be at least 1, got %d", i.DebounceIntervalMs)
	}

	if i.IdlePollIntervalMs < 1 {
		return fmt.Errorf("idle_poll_interval_ms must be at least 1, got %d", i.IdlePollIntervalMs)
	}

	return nil
}

// Validate validates indicator configuration
func (i *IndicatorConfig) Validate() error {
	if i.Enabled {
		if i.GPIOChip == "" {
			return fmt.Errorf("gpio_chip cannot be empty when indicator is enabled")
		}

		if i.LEDOffset < 0 {
			return fmt.Errorf("led_offset cannot be negative, got %d", i.LEDOffset)
		}
	}

	if i.BlinkIntervalMs < 1 {
		return fmt.Errorf("blink_interval_ms must be at least 1, got %d", i.BlinkIntervalMs)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz per wire contract, got %d", a.SampleRate)
	}

	if a.FrameSamples != 256 {
		return fmt.Errorf("frame_samples must be 256 per wire contract, got %d", a.FrameSamples)
	}

	if a.WarmupFrames < 0 {
		return fmt.Errorf("warmup_frames cannot be negative, got %d", a.WarmupFrames)
	}

	return nil
}

// Validate validates backend discovery configuration
func (b *BackendConfig) Validate() error {
	if b.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}

	if b.FallbackAddress == "" {
		return fmt.Errorf("fallback_address cannot be empty")
	}

	if _, _, err := net.SplitHostPort(b.FallbackAddress); err != nil {
		return fmt.Errorf("fallback_address must be host:port: %w", err)
	}

	if b.ResolveAttempts < 1 {
		return fmt.Errorf("resolve_attempts must be at least 1, got %d", b.ResolveAttempts)
	}

	if b.ResolveTimeoutS < 1 {
		return fmt.Errorf("resolve_timeout_s must be at least 1, got %d", b.ResolveTimeoutS)
	}

	if b.ResolveBackoffS < 0 {
		return fmt.Errorf("resolve_backoff_s cannot be negative, got %d", b.ResolveBackoffS)
	}

	return nil
}

// Validate validates session timing configuration.
// The grace period and the processing deadline guard different failure modes
// (trailing speech vs. an unresponsive backend) and are validated separately.
func (s *SessionConfig) Validate() error {
	if s.GracePeriodMs < 1 {
		return fmt.Errorf("grace_period_ms must be at least 1, got %d", s.GracePeriodMs)
	}

	if s.AckPollTimeoutMs < 1 {
		return fmt.Errorf("ack_poll_timeout_ms must be at least 1, got %d", s.AckPollTimeoutMs)
	}

	if s.ProcessingDeadlineS < 1 {
		return fmt.Errorf("processing_deadline_s must be at least 1, got %d", s.ProcessingDeadlineS)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetDebounceInterval returns the debounce interval as a time.Duration
func (i *InputConfig) GetDebounceInterval() time.Duration {
	return time.Duration(i.DebounceIntervalMs) * time.Millisecond
}

// GetIdlePollInterval returns the idle poll interval as a time.Duration
func (i *InputConfig) GetIdlePollInterval() time.Duration {
	return time.Duration(i.IdlePollIntervalMs) * time.Millisecond
}

// GetBlinkInterval returns the indicator blink interval as a time.Duration
func (i *IndicatorConfig) GetBlinkInterval() time.Duration {
	return time.Duration(i.BlinkIntervalMs) * time.Millisecond
}

// GetResolveTimeout returns the per-attempt resolution timeout as a time.Duration
func (b *BackendConfig) GetResolveTimeout() time.Duration {
	return time.Duration(b.ResolveTimeoutS) * time.Second
}

// GetResolveBackoff returns the backoff between resolution attempts as a time.Duration
func (b *BackendConfig) GetResolveBackoff() time.Duration {
	return time.Duration(b.ResolveBackoffS) * time.Second
}

// GetGracePeriod returns the post-release grace period as a time.Duration
func (s *SessionConfig) GetGracePeriod() time.Duration {
	return time.Duration(s.GracePeriodMs) * time.Millisecond
}

// GetAckPollTimeout returns the bounded ack wait as a time.Duration
func (s *SessionConfig) GetAckPollTimeout() time.Duration {
	return time.Duration(s.AckPollTimeoutMs) * time.Millisecond
}

// GetProcessingDeadline returns the overall processing deadline as a time.Duration
func (s *SessionConfig) GetProcessingDeadline() time.Duration {
	return time.Duration(s.ProcessingDeadlineS) * time.Second
}

// FramePeriod returns the wall time covered by one audio frame
func (a *AudioConfig) FramePeriod() time.Duration {
	return time.Duration(a.FrameSamples) * time.Second / time.Duration(a.SampleRate)
}
