package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/controllers"
	container "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Container"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize dependency injection container
	ctr, err := container.NewContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		os.Exit(1)
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Info("Starting plant gateway")

	gin.SetMode(gin.ReleaseMode)
	router := controllers.SetupRoutes(controllers.Dependencies{
		CORSOrigins:       config.Server.CORSOrigins,
		InternalAPISecret: config.InternalAPISecret,
		Logger:            logger,
		Health:            ctr.HealthChecker(),
		Auth:              ctr.Auth(),
		Tokens:            ctr.Tokens(),
		Provisioning:      ctr.Provisioning(),
		Dispatcher:        ctr.Dispatcher(),
		Readings:          ctr.Readings(),
		Hub:               ctr.Hub(),
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ctr.Manager().Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Logger.Info().Str("port", config.Server.Port).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithError(err, "Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.ErrorWithError(err, "Gateway stopped with error")
	}
}
