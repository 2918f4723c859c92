package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the runner configuration file
// (~/.config/nox/config.yaml). Numeric fields are pointers so "not set" is
// distinguishable from zero values; string fields treat "" as not set. A flag
// given on the command line always wins over the file.
type Config struct {
	Model string `yaml:"model"`

	MaxTokens *int64 `yaml:"max_tokens"`
	Ctx       *int64 `yaml:"ctx"`
	Batch     *int64 `yaml:"batch"`

	Temperature   *float64 `yaml:"temperature"`
	TopP          *float64 `yaml:"top_p"`
	TopK          *int64   `yaml:"top_k"`
	RepeatLastN   *int64   `yaml:"repeat_last_n"`
	RepeatPenalty *float64 `yaml:"repeat_penalty"`

	StreamBytes *int64 `yaml:"stream_bytes"`
	KVWindow    *int64 `yaml:"kv_window"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "nox", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or does not parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyConfig fills flag variables from the config file where the
// corresponding CLI flag was not explicitly set.
func applyConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		maxTokens = *cfg.MaxTokens
	}
	if cfg.Ctx != nil && !c.IsSet("ctx") {
		ctxLength = *cfg.Ctx
	}
	if cfg.Batch != nil && !c.IsSet("batch") {
		batchSize = *cfg.Batch
	}
	if cfg.Temperature != nil && !c.IsSet("temp") {
		temp = *cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		topP = *cfg.TopP
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		topK = *cfg.TopK
	}
	if cfg.RepeatLastN != nil && !c.IsSet("repeat-last-n") {
		repeatLast = *cfg.RepeatLastN
	}
	if cfg.RepeatPenalty != nil && !c.IsSet("repeat-penalty") {
		repeatPen = *cfg.RepeatPenalty
	}
	if cfg.StreamBytes != nil && !c.IsSet("stream-bytes") {
		streamBytes = *cfg.StreamBytes
	}
	if cfg.KVWindow != nil && !c.IsSet("kv-window") {
		kvWindow = *cfg.KVWindow
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
