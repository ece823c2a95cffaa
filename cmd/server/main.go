package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	rodengine "github.com/GriffinCanCode/bastion/internal/engine/rod"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/config"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/logging"
	"github.com/GriffinCanCode/bastion/internal/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	host := flag.String("host", "", "Listen address (overrides HOST)")
	controlURL := flag.String("browser", "", "DevTools URL of a running browser (overrides BROWSER_CONTROL_URL)")
	dev := flag.Bool("dev", false, "Development mode: colored debug logs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *controlURL != "" {
		cfg.Browser.ControlURL = *controlURL
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	eng, err := rodengine.New(startCtx, rodengine.Config{
		ControlURL:     cfg.Browser.ControlURL,
		Bin:            cfg.Browser.Bin,
		Headless:       cfg.Browser.Headless,
		NoSandbox:      cfg.Browser.NoSandbox,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
	}, logger.Named("engine").Logger)
	cancel()
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Deps{Engine: eng}, logger)
	if err != nil {
		_ = eng.Close()
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("Server error", zap.Error(runErr))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	return runErr
}
