package llmfactory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/config"
	"github.com/effective-security/textanalyzer/pkg/llms"
	"github.com/effective-security/textanalyzer/pkg/llms/googleai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/textanalyzer", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// CreateLLM returns the Gemini model described by the config.
// A missing API key is a startup error.
func CreateLLM(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if cfg.APIKey == "" {
		return nil, errors.Mark(
			errors.New("GEMINI_API_KEY environment variable not set"),
			chatmodel.ErrStartup)
	}

	opts := []googleai.Option{
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, googleai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, googleai.WithDefaultTemperature(cfg.Temperature))
	}

	llm, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, errors.Mark(err, chatmodel.ErrStartup)
	}

	logger.KV(xlog.DEBUG,
		"status", "model_created",
		"model", llm.GetName(),
	)
	return llm, nil
}
