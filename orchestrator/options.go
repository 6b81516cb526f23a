package orchestrator

import (
	"github.com/effective-security/textanalyzer/pkg/llms"
)

// Option is a function that can be used to modify the behavior of the Orchestrator Config.
type Option func(*Config)

// Config holds the model call settings of the Orchestrator
type Config struct {
	// Model is the model to use in an LLM call.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// TopK, TopP and StopWords are sent when set
	TopK      int
	TopP      float64
	StopWords []string

	// SystemPrompt is sent before the user query when not empty
	SystemPrompt string

	// CallbackHandler receives the query events
	CallbackHandler Callback
}

// WithModel is an option that sets the model to use
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = model != ""
	}
}

// WithMaxTokens is an option that sets the maximum number of tokens to generate
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = maxTokens > 0
	}
}

// WithTemperature is an option that sets the temperature for sampling
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithTopK is an option that sets top-k sampling, 0 keeps the model default
func WithTopK(topK int) Option {
	return func(o *Config) {
		o.TopK = topK
	}
}

// WithTopP is an option that sets top-p sampling, 0 keeps the model default
func WithTopP(topP float64) Option {
	return func(o *Config) {
		o.TopP = topP
	}
}

// WithStopWords is an option that sets the words to stop generation on
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
	}
}

// WithSystemPrompt is an option that sets the system prompt
func WithSystemPrompt(prompt string) Option {
	return func(o *Config) {
		o.SystemPrompt = prompt
	}
}

// WithCallback is an option that sets the callback handler
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// GetCallOptions returns the LLM call options for the values that were set,
// followed by extra.
func (cfg *Config) GetCallOptions(extra ...llms.CallOption) []llms.CallOption {
	var opts []llms.CallOption
	if cfg.modelSet {
		opts = append(opts, llms.WithModel(cfg.Model))
	}
	if cfg.maxTokensSet {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.temperatureSet {
		opts = append(opts, llms.WithTemperature(cfg.Temperature))
	}
	if cfg.TopK > 0 {
		opts = append(opts, llms.WithTopK(cfg.TopK))
	}
	if cfg.TopP > 0 {
		opts = append(opts, llms.WithTopP(cfg.TopP))
	}
	if len(cfg.StopWords) > 0 {
		opts = append(opts, llms.WithStopWords(cfg.StopWords))
	}
	return append(opts, extra...)
}

// NewConfig returns Config with the options applied
func NewConfig(opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
