// Package config provides configuration management for the animus engine.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	LipSync   LipSyncConfig   `mapstructure:"lipsync"`
	Gesture   GestureConfig   `mapstructure:"gesture"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Transport TransportConfig `mapstructure:"transport"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// EngineConfig tunes the frame loop and procedural motion.
type EngineConfig struct {
	FrameRate        int           `mapstructure:"frame_rate"`
	MaxFrameDelta    time.Duration `mapstructure:"max_frame_delta"`
	BlinkMinGap      time.Duration `mapstructure:"blink_min_gap"`
	BlinkMaxGap      time.Duration `mapstructure:"blink_max_gap"`
	BlinkDuration    time.Duration `mapstructure:"blink_duration"`
	DoubleBlinkOdds  float64       `mapstructure:"double_blink_odds"`
	HeadTurnRange    float64       `mapstructure:"head_turn_range"`    // radians, biased toward center
	TorsoSwayRange   float64       `mapstructure:"torso_sway_range"`   // radians, single axis
	GazeDownBias     float64       `mapstructure:"gaze_down_bias"`     // slight downward/forward offset
	TalkingBoost     float64       `mapstructure:"talking_boost"`      // motion multiplier while talking
}

// LipSyncConfig tunes feature extraction.
type LipSyncConfig struct {
	Smoothing       float64 `mapstructure:"smoothing"`        // k in next = prev + k*(raw-prev)
	AmplitudeGate   float64 `mapstructure:"amplitude_gate"`   // RMS below this is silence
	AmplitudeScale  float64 `mapstructure:"amplitude_scale"`  // RMS to openness scaling
	CentroidLowBand float64 `mapstructure:"centroid_low"`     // below: back/round vowels (ou)
	CentroidMidBand float64 `mapstructure:"centroid_mid"`     // between low and mid: oh
	WindowSize      int     `mapstructure:"window_size"`      // FFT window, power of two
}

// GestureConfig configures the clip library and idle behavior.
type GestureConfig struct {
	ClipDir         string        `mapstructure:"clip_dir"`
	WatchClips      bool          `mapstructure:"watch_clips"`
	IdleVariety     bool          `mapstructure:"idle_variety"`
	IdleMinInterval time.Duration `mapstructure:"idle_min_interval"`
	IdleMaxInterval time.Duration `mapstructure:"idle_max_interval"`
	TalkFade        time.Duration `mapstructure:"talk_fade"`
	ThinkFade       time.Duration `mapstructure:"think_fade"`
}

// AudioConfig configures playback.
type AudioConfig struct {
	SampleRate   int    `mapstructure:"sample_rate"`
	OutputDevice string `mapstructure:"output_device"` // empty selects no device (clock-only playback)
}

// TransportConfig configures the event feed.
type TransportConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	FrameFeedAddr  string        `mapstructure:"frame_feed_addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			FrameRate:       60,
			MaxFrameDelta:   100 * time.Millisecond,
			BlinkMinGap:     500 * time.Millisecond,
			BlinkMaxGap:     3 * time.Second,
			BlinkDuration:   150 * time.Millisecond,
			DoubleBlinkOdds: 0.2,
			HeadTurnRange:   0.18,
			TorsoSwayRange:  0.05,
			GazeDownBias:    0.08,
			TalkingBoost:    1.6,
		},
		LipSync: LipSyncConfig{
			Smoothing:       0.35,
			AmplitudeGate:   0.01,
			AmplitudeScale:  8.0,
			CentroidLowBand: 0.25,
			CentroidMidBand: 0.5,
			WindowSize:      1024,
		},
		Gesture: GestureConfig{
			ClipDir:         "assets/gestures",
			WatchClips:      true,
			IdleVariety:     true,
			IdleMinInterval: 10 * time.Second,
			IdleMaxInterval: 20 * time.Second,
			TalkFade:        500 * time.Millisecond,
			ThinkFade:       800 * time.Millisecond,
		},
		Audio: AudioConfig{
			SampleRate: 24000,
		},
		Transport: TransportConfig{
			ServerURL:      "ws://localhost:8080/events",
			ReconnectDelay: 5 * time.Second,
			MaxReconnects:  10,
			FrameFeedAddr:  ":8090",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".animus")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("ANIMUS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file.
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".animus")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("engine", cfg.Engine)
	viper.Set("lipsync", cfg.LipSync)
	viper.Set("gesture", cfg.Gesture)
	viper.Set("audio", cfg.Audio)
	viper.Set("transport", cfg.Transport)
	viper.Set("logging", cfg.Logging)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}
