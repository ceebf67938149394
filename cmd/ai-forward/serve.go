package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TnZzZHlp/ai-forward/cmd/ai-forward/di"
	"github.com/TnZzZHlp/ai-forward/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ai-forward gateway",
	Long: `Start the gateway that accepts OpenAI-compatible completion requests
and forwards them to configured upstream providers.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	container, err := di.NewContainer(cfgFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to create container")
		return err
	}

	// Resolving the server pulls the whole dependency graph: config,
	// logger, ban manager, counters, cache warm-up, routes.
	serverSvc, err := di.Invoke[*di.ServerService](container)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize services")
		return err
	}
	if _, err := di.Invoke[*di.WatcherService](container); err != nil {
		log.Error().Err(err).Msg("failed to start config watcher")
		return err
	}

	done := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info().Msg("shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.ShutdownWithContext(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
		close(done)
	}()

	log.Info().
		Str("listen", serverSvc.Server.Addr()).
		Str("version", version.String()).
		Msg("starting ai-forward")

	if err := serverSvc.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		return err
	}

	<-done
	log.Info().Msg("server stopped")
	return nil
}
