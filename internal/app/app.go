package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	container, err := NewContainer(app.ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	app.container.Logger().Info("Application initialized successfully")
	return app, nil
}

// Run serves HTTP, runs the reclaim scheduler and, when enabled, the Kafka consumer.
// It returns when the process is signalled or the HTTP server fails.
func (app *Application) Run() error {
	c := app.container
	logger := c.logger

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.scheduler.Start(app.ctx)
	}()

	if c.consumerService != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.consumerService.Start(app.ctx); err != nil {
				logger.Error("Consumer service stopped with error", zap.Error(err))
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", c.config.HTTPAddr))
		serverErr <- c.server.Listen(c.config.HTTPAddr)
	}()

	var runErr error
	select {
	case <-app.ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = err
			logger.Error("HTTP server failed", zap.Error(err))
		}
		app.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	wg.Wait()
	return runErr
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.container.Shutdown(ctx)
	}
}
