package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/pkg/llmutils"
	"github.com/effective-security/textanalyzer/tools"
)

// NoFinalTextMessage is printed when the model did not answer with text
const NoFinalTextMessage = "The model did not provide a final text response."

// Asker answers a single query
type Asker interface {
	Ask(ctx context.Context, query string) (*Answer, error)
}

// Console reads queries line by line and prints the answers
type Console struct {
	In    io.Reader
	Out   io.Writer
	Asker Asker
}

// PrintTools prints the discovered tools
func (c *Console) PrintTools(list []tools.Descriptor) {
	if len(list) == 0 {
		fmt.Fprintln(c.Out, "No tools discovered from the provider.")
		return
	}
	sep := strings.Repeat("-", 20)
	fmt.Fprintln(c.Out, sep)
	fmt.Fprintln(c.Out, "Available Tools from the provider:")
	for _, d := range list {
		desc := d.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(c.Out, "  - Name: %s\n", d.Name)
		fmt.Fprintf(c.Out, "    Description: %s\n", desc)
	}
	fmt.Fprintln(c.Out, sep)
}

// Run reads queries until "quit", EOF or ctx is done.
// Lines are not limited in length.
// Query errors are printed and do not stop the loop.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.Out, "--- Text Analyzer Ready ---")
	fmt.Fprintln(c.Out, "Enter your query, or type 'quit' to exit.")

	reader := bufio.NewReader(c.In)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(c.Out, "> ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintln(c.Out, "Exiting.")
			return errors.Wrap(err, "failed to read query")
		}
		eof := err != nil

		input := strings.TrimSpace(line)
		if strings.EqualFold(input, "quit") {
			break
		}
		if input != "" {
			c.ask(ctx, input)
		}
		if eof {
			break
		}
	}
	fmt.Fprintln(c.Out, "Exiting.")
	return nil
}

func (c *Console) ask(ctx context.Context, input string) {
	answer, err := c.Asker.Ask(ctx, input)
	if err != nil {
		fmt.Fprintf(c.Out, "Error: %v\n", err)
		return
	}
	if !answer.HasText() {
		fmt.Fprintln(c.Out, NoFinalTextMessage)
		return
	}
	fmt.Fprintf(c.Out, "\n%s\n", llmutils.EnsureEndsWithNewline(answer.Text))
}
