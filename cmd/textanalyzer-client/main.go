// Command textanalyzer-client answers queries with Gemini,
// using the tools of a text analysis provider launched over stdio.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/callbacks"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/config"
	"github.com/effective-security/textanalyzer/mcp"
	"github.com/effective-security/textanalyzer/orchestrator"
	"github.com/effective-security/textanalyzer/pkg/llmfactory"
	"github.com/effective-security/textanalyzer/pkg/llms"
	"github.com/effective-security/textanalyzer/pkg/llmutils"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/textanalyzer", "client")

var version = "dev"

// Options allow to replace the dependencies of the client in tests
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// NewLLM creates the model, defaults to llmfactory.NewLLM
	NewLLM func(ctx context.Context, cfg *config.Config) (llms.Model, error)
	// Connect launches the provider, defaults to mcp.Launch
	Connect func(ctx context.Context, commandLine string) (*mcp.Client, error)
}

type flags struct {
	configFile string
	model      string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(Options{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts Options) *cobra.Command {
	f := new(flags)
	cmd := &cobra.Command{
		Use:          "textanalyzer-client <provider command>",
		Short:        "Ask questions about text, answered by Gemini with the provider tools",
		Version:      version,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts.withDefaults(cmd), f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "path to the YAML configuration file")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Gemini model name")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print the query trace and debug logs to stderr")
	if opts.Stdout != nil {
		cmd.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		cmd.SetErr(opts.Stderr)
	}
	return cmd
}

func (o Options) withDefaults(cmd *cobra.Command) Options {
	if o.Stdin == nil {
		o.Stdin = cmd.InOrStdin()
	}
	if o.Stdout == nil {
		o.Stdout = cmd.OutOrStdout()
	}
	if o.Stderr == nil {
		o.Stderr = cmd.ErrOrStderr()
	}
	if o.NewLLM == nil {
		o.NewLLM = llmfactory.NewLLM
	}
	if o.Connect == nil {
		o.Connect = func(ctx context.Context, commandLine string) (*mcp.Client, error) {
			return mcp.Launch(ctx, commandLine, version)
		}
	}
	return o
}

func run(ctx context.Context, opts Options, f *flags, commandLine string) error {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return errors.Mark(errors.WithMessagef(err, "unable to load config %q", f.configFile), chatmodel.ErrStartup)
	}
	if f.model != "" {
		cfg.Model = f.model
	}

	xlog.SetFormatter(xlog.NewStringFormatter(opts.Stderr))
	level := logLevel(cfg.LogLevel)
	if f.verbose {
		level = xlog.DEBUG
	}
	xlog.SetGlobalLogLevel(level)
	if f.verbose {
		fmt.Fprintf(opts.Stderr, "[Client] Config:\n%s", llmutils.ToYAML(cfg.Masked()))
	}

	llm, err := opts.NewLLM(ctx, cfg)
	if err != nil {
		logger.KV(xlog.ERROR, "status", "startup_failed", "reason", "model", "err", err.Error())
		return err
	}

	client, err := opts.Connect(ctx, commandLine)
	if err != nil {
		logger.KV(xlog.ERROR, "status", "startup_failed", "reason", "provider", "err", err.Error())
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	if f.verbose {
		cb.Add(callbacks.NewPrinter(opts.Stderr, callbacks.ModeVerbose))
		cb.Add(callbacks.NewScratchpad(callbacks.ModeVerbose, opts.Stderr))
	}

	o, err := orchestrator.New(llm, client,
		orchestrator.WithModel(cfg.Model),
		orchestrator.WithMaxTokens(cfg.MaxTokens),
		orchestrator.WithTemperature(cfg.Temperature),
		orchestrator.WithTopK(cfg.TopK),
		orchestrator.WithTopP(cfg.TopP),
		orchestrator.WithStopWords(cfg.StopWords),
		orchestrator.WithSystemPrompt(cfg.SystemPrompt),
		orchestrator.WithCallback(cb),
	)
	if err != nil {
		return errors.Mark(err, chatmodel.ErrStartup)
	}

	logger.KV(xlog.INFO,
		"status", "ready",
		"model", o.ModelName(),
		"tools", len(o.Tools()),
	)

	console := &orchestrator.Console{
		In:    opts.Stdin,
		Out:   opts.Stdout,
		Asker: o,
	}
	console.PrintTools(o.Tools())
	return console.Run(ctx)
}

func logLevel(s string) xlog.LogLevel {
	level, err := xlog.ParseLevel(strings.ToUpper(s))
	if err != nil {
		return xlog.WARNING
	}
	return level
}
