// Command textanalyzer-server serves the text analysis tools over MCP on stdio.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/textanalyzer/callbacks"
	"github.com/effective-security/textanalyzer/mcp"
	"github.com/effective-security/textanalyzer/tools/textstats"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/textanalyzer", "server")

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&mcpsdk.StdioTransport{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd returns the command serving on the transport.
// stdout belongs to the protocol, logs go to stderr.
func newRootCmd(transport mcpsdk.Transport) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:          "textanalyzer-server",
		Short:        "Serve analyze_text and count_sentences tools over MCP stdio",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), transport, cmd.ErrOrStderr(), verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log tool calls to stderr")
	return cmd
}

func serve(ctx context.Context, transport mcpsdk.Transport, stderr io.Writer, verbose bool) error {
	xlog.SetFormatter(xlog.NewStringFormatter(stderr))
	if verbose {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}

	reg, err := textstats.NewRegistry()
	if err != nil {
		return err
	}
	reg.WithCallback(callbacks.NewPackageLogger(logger))

	p, err := mcp.NewProvider(reg, version)
	if err != nil {
		return err
	}

	logger.KV(xlog.INFO,
		"status", "starting",
		"name", mcp.ProviderName,
		"version", version,
	)
	return p.Run(ctx, transport)
}
