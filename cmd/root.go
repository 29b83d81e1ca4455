// Package cmd implements the hotelcrawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/app"
	"github.com/JakeFAU/hotel-directory-crawler/internal/config"
	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/dispatcher"
)

// Exit codes returned by Execute.
const (
	exitOK        = 0
	exitRunFailed = 1
	exitFatalInit = 2
)

// crawlApp is the part of *app.App the command drives. Tests substitute it.
type crawlApp interface {
	Run(ctx context.Context) (dispatcher.Summary, error)
	Close(ctx context.Context) error
}

// appFactory builds the crawl pipeline once configuration and logger exist.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawlApp, error)

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawlApp, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// newRootCmd creates the root command. The crawl runs directly on it; there
// are no subcommands and no positional arguments.
func newRootCmd(factory appFactory) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "hotelcrawler",
		Short: "Crawls a hotel directory into a JSON-lines dataset.",
		Long: `hotelcrawler walks a hotel directory from its start page through the
alphabetical glossary and city pages down to every hotel page, writing one
JSON record per page. Requests that keep failing are logged and skipped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), cfgFile, factory)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/hotelcrawler, $HOME/.hotelcrawler)")
	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stderr, newApp)
}

func execute(ctx context.Context, args []string, stderr io.Writer, factory appFactory) int {
	cmd := newRootCmd(factory)
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	cmd.SetOut(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintf(stderr, "hotelcrawler: %v\n", err)
	var fatal *crawler.FatalInitError
	if errors.As(err, &fatal) {
		return exitFatalInit
	}
	return exitRunFailed
}
