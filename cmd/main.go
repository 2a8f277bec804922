package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/orgball2608/story-viewer-engine/internal/app"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"go.uber.org/fx"
)

func main() {
	log := logger.New(logger.Opts{})

	engine := fx.New(
		fx.Logger(log),
		app.App,
	)

	if err := engine.Start(context.Background()); err != nil {
		log.Error("Failed to start application", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := engine.Stop(context.Background()); err != nil {
		log.Error("Failed to stop application", "error", err)
		os.Exit(1)
	}
}
