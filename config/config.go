// Package config provides the configuration of the textanalyzer client.
package config

import (
	"os"

	"github.com/effective-security/textanalyzer/pkg/llms/googleai"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
)

// DefaultSystemPrompt is sent with every query
const DefaultSystemPrompt = "You are a helpful assistant. " +
	"When the user asks about word, character or sentence counts of a text, " +
	"use the available tools and answer with the numbers they return."

// Defaults
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.2
	DefaultLogLevel    = "WARNING"
)

// Config of the client
type Config struct {
	// Model is the Gemini model name
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// Temperature of the sampling, 0 uses the default
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// MaxTokens limits the size of the answer, 0 uses the default
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// TopK and TopP sampling, 0 uses the model default
	TopK int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	TopP float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	// StopWords stop the generation
	StopWords []string `json:"stop_words,omitempty" yaml:"stop_words,omitempty"`
	// APIKey for the Gemini API, supports ${ENV} expansion.
	// GEMINI_API_KEY is used when empty.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// BaseURL overrides the Gemini API endpoint
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// SystemPrompt sent with every query
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// LogLevel is ERROR, WARNING, INFO or DEBUG
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// Default returns the configuration used when no file is provided
func Default() *Config {
	cfg := new(Config)
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills the empty values
func (c *Config) SetDefaults() {
	c.Model = values.StringsCoalesce(c.Model, googleai.DefaultModel)
	c.APIKey = values.StringsCoalesce(c.APIKey, os.Getenv("GEMINI_API_KEY"))
	c.SystemPrompt = values.StringsCoalesce(c.SystemPrompt, DefaultSystemPrompt)
	c.LogLevel = values.StringsCoalesce(c.LogLevel, DefaultLogLevel)
	c.MaxTokens = values.NumbersCoalesce(c.MaxTokens, DefaultMaxTokens)
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
}

// Masked returns a copy of the config safe to print
func (c *Config) Masked() *Config {
	cp := *c
	if cp.APIKey != "" {
		cp.APIKey = "****"
	}
	return &cp
}

// Load from file, the empty file returns the defaults.
// Environment variables in the values are expanded.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		err := configloader.UnmarshalAndExpand(file, cfg)
		if err != nil {
			return nil, err
		}
	}
	cfg.SetDefaults()
	return cfg, nil
}
