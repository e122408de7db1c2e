package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/atlas-packer/internal/application"
	"github.com/eugenenazirov/atlas-packer/internal/config"
	"github.com/eugenenazirov/atlas-packer/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("atlas-packer", "Atlas Packer - packs sprite boxes into a compact texture atlas without overlap")
	overrides := registerFlags(kingpinApp)
	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	cfg, err := config.Load(overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// registerFlags declares the CLI flags and returns a function that turns the
// parsed values into config overrides. Unset flags leave lower-precedence
// sources untouched.
func registerFlags(app *kingpin.Application) func() *config.CLIOverrides {
	configFile := app.Flag("config", "Path to YAML configuration file").String()
	port := app.Flag("port", "HTTP port exposed by the service").String()
	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error)").String()
	align := app.Flag("align", "Round automatic atlas widths up to a multiple of this value (0 keeps the configured value)").Default("0").Int()
	verifySet := new(bool)
	verify := app.Flag("verify", "Check every packing for overlaps before returning it").IsSetByUser(verifySet).Bool()
	rateLimitRPS := app.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurst := app.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	return func() *config.CLIOverrides {
		overrides := &config.CLIOverrides{
			ConfigFile: *configFile,
		}

		if *port != "" {
			overrides.Port = port
		}

		if *logLevel != "" {
			overrides.LogLevel = logLevel
		}

		if *align > 0 {
			overrides.Align = align
		}

		if *verifySet {
			overrides.Verify = verify
		}

		if *rateLimitRPS >= 0 {
			overrides.RateLimitRPS = rateLimitRPS
		}

		if *rateLimitBurst >= 0 {
			overrides.RateLimitBurst = rateLimitBurst
		}

		return overrides
	}
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
