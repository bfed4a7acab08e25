package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	// Registers the "Main" CloudEvent target for the function subcommand.
	_ "github.com/i474232898/air-quality-etl"
	httpapi "github.com/i474232898/air-quality-etl/internal/api/http"
	"github.com/i474232898/air-quality-etl/internal/app"
	"github.com/i474232898/air-quality-etl/internal/config"
	"github.com/i474232898/air-quality-etl/internal/logger"
	"github.com/i474232898/air-quality-etl/internal/scheduler"
	"github.com/i474232898/air-quality-etl/internal/weather"
)

const usage = `usage: air-quality-etl [run|daemon|function]

  run       fetch, aggregate and append once, then exit (default)
  daemon    run daily at SCHEDULE_AT (UTC) and serve the HTTP API on PORT
  function  host the "Main" CloudEvent function on PORT`

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	log := logger.Must(os.Getenv("LOG_LEVEL"))
	defer func() { _ = log.Sync() }()

	var err error
	switch cmd {
	case "run":
		err = runOnce(log)
	case "daemon":
		err = runDaemon(log)
	case "function":
		err = runFunction(log)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Errorw("exiting", "command", cmd, "error", err)
		_ = log.Sync()
		os.Exit(1)
	}
}

// setup loads the configuration and wires the pipeline. The returned logger
// honours the configured level, which may come from CONFIG_FILE.
func setup(ctx context.Context, log *zap.SugaredLogger) (*app.App, *zap.SugaredLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, log, fmt.Errorf("load config: %w", err)
	}
	log = logger.Reconfigure(log, cfg.LogLevel)
	a, err := app.New(ctx, cfg, log)
	return a, log, err
}

// runOnce prints the run status on stdout and fails when it is Error.
func runOnce(log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := setup(ctx, log)
	if err != nil {
		fmt.Println(weather.StatusError)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warnw("closing clients", "error", err)
		}
	}()

	res, runErr := a.Service.Run(ctx)
	fmt.Println(res.Status)

	if url := a.Config.PushgatewayURL; url != "" {
		if err := a.Metrics.Push(url, "air_quality_etl"); err != nil {
			log.Warnw("metrics push failed", "error", err)
		}
	}
	return runErr
}

func runDaemon(log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := setup(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warnw("closing clients", "error", err)
		}
	}()

	guard := httpapi.NewRunGuard(a.Service)

	sched := scheduler.New(guard, a.Config.ScheduleAt, time.Hour, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	server := fiber.New(fiber.Config{
		AppName:               "air-quality-etl",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// A manual run can take as long as both upstream fetches plus the load job.
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	server.Use(fiberlogger.New())
	server.Use(recover.New())

	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "air-quality-etl",
			"warehouse": a.Warehouse.Name(),
			"nextRun":   sched.NextRun(),
		})
	})
	server.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.Metrics.Registry(), promhttp.HandlerOpts{})))

	httpapi.RegisterRoutes(server, guard, a.Reader)

	go func() {
		if err := server.Listen(":" + a.Config.Port); err != nil {
			log.Errorw("fiber server stopped", "error", err)
			stop()
		}
	}()
	log.Infow("daemon started", "port", a.Config.Port, "table", a.Config.FullTableID())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warnw("error during shutdown", "error", err)
	}
	return nil
}

// runFunction serves the CloudEvent target locally, the same way the
// Cloud Functions runtime does.
func runFunction(log *zap.SugaredLogger) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Infow("serving function target", "target", "Main", "port", port)
	return funcframework.Start(port)
}
