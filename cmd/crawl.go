package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/config"
	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/logging"
)

const shutdownTimeout = 30 * time.Second

// runCrawl loads configuration, builds the pipeline and crawls once. A run
// that ends with failed requests still succeeds; only init problems and
// lost output are errors.
func runCrawl(ctx context.Context, cfgFile string, factory appFactory) (err error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &crawler.FatalInitError{Err: err}
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return &crawler.FatalInitError{Err: err}
	}

	instance, err := factory(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize crawler", zap.Error(err))
		_ = logger.Sync()
		var fatal *crawler.FatalInitError
		if !errors.As(err, &fatal) {
			err = &crawler.FatalInitError{Err: err}
		}
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if cerr := instance.Close(closeCtx); cerr != nil {
			logger.Error("Failed to close crawler services", zap.Error(cerr))
			err = errors.Join(err, fmt.Errorf("close crawler: %w", cerr))
		}
	}()

	summary, err := instance.Run(ctx)
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}
	if summary.Stopped && ctx.Err() != nil {
		logger.Warn("Crawl interrupted before the directory was exhausted")
	}
	return nil
}
