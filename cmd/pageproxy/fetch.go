package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pageproxy/internal/proxy"
)

// cliClientID is the rate limit identity of one-shot fetches.
const cliClientID = "cli"

var errFetchFailed = errors.New("fetch failed")

type pageFetcher interface {
	Fetch(ctx context.Context, request proxy.FetchRequest) proxy.Outcome
}

func newFetchCmd() *cobra.Command {
	var text bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one page and print it",
		Long: `Runs a single request through the same strategy chain as the
server and prints the page (or its visible text with --text) to stdout.
Failures are printed to stderr, one line per attempted strategy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runFetch(cmd.Context(), appInstance.Orchestrator(), args[0], text, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "print extracted visible text instead of raw HTML")
	return cmd
}

func runFetch(ctx context.Context, f pageFetcher, target string, text bool, stdout, stderr io.Writer) error {
	out := f.Fetch(ctx, proxy.FetchRequest{
		TargetURL:   strings.TrimSpace(target),
		ExtractText: text,
		ClientID:    cliClientID,
	})
	switch out.Kind {
	case proxy.OutcomeRenderedText, proxy.OutcomeExtractedText:
		_, err := fmt.Fprintln(stdout, out.Text)
		return err
	case proxy.OutcomeRawHTML:
		_, err := io.WriteString(stdout, out.HTML)
		return err
	}
	for failure := out.Failure; failure != nil; failure = failure.Previous {
		fmt.Fprintln(stderr, failure.Error())
	}
	return errFetchFailed
}
