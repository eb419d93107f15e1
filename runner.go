package mcpgw

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/viant/mcpgw/internal/logging"
	"github.com/viant/mcpgw/internal/tracking"
)

const shutdownTimeout = 10 * time.Second

// ParseArgs builds options from command line arguments. When a config URL is
// given, the file is loaded first and the flags are applied on top of it.
func ParseArgs(ctx context.Context, args []string) (*Options, error) {
	preset := &Options{}
	if _, err := flags.NewParser(preset, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, err
	}
	options := &Options{}
	if preset.ConfigURL != "" {
		if err := options.Load(ctx, preset.ConfigURL); err != nil {
			return nil, err
		}
	}
	if _, err := flags.NewParser(options, flags.HelpFlag|flags.PassDoubleDash).ParseArgs(args); err != nil {
		return nil, err
	}
	return options, nil
}

// Run starts a gateway from command line arguments and serves until interrupted.
func Run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	options, err := ParseArgs(ctx, args)
	if err != nil {
		return err
	}
	options.Init()
	logger := logging.New("mcpgw", options.LogLevel, options.LogPretty, os.Stderr)
	if err = tracking.Init(options.SentryDSN, options.Environment(), ""); err != nil {
		logger.Warn().Err(err).Msg("failed to initialise error tracking")
	}
	defer tracking.Flush(2 * time.Second)

	gateway, err := New(ctx, options, WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	gateway.Start(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := gateway.Close(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("gateway shutdown")
		}
	}()
	return gateway.ListenAndServe(ctx)
}
