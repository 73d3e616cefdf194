package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	authcore "go.peddle.app/authcore"
	echoapi "go.peddle.app/authcore/api/echo"
	"go.peddle.app/authcore/config"
	"go.peddle.app/authcore/identity"
	"go.peddle.app/authcore/mongodb"
	"go.peddle.app/authcore/sessioncode"
	"go.peddle.app/authcore/tracing"
)

var tracerProvider *sdktrace.TracerProvider

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(logLevel).With().Timestamp().Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Logger = logger
	if parseErr != nil {
		logger.Warn().Str("configured_log_level", cfg.LogLevel).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Info().
		Str("http_port", cfg.HTTPPort).
		Str("session_code_backend", cfg.SessionCodeBackend).
		Str("mongo_db_name", cfg.MongoDBName).
		Msg("Starting authcored")

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}
	tracerProvider = tp

	ctx := context.Background()
	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		logger.Fatal().Err(initErr).Msg("Failed to initialize MongoDB connection")
	}

	profiles, err := mongodb.NewProfileRepository(ctx, mongodb.GetDB())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize ProfileRepository")
	}

	var codeStore sessioncode.Store
	switch cfg.SessionCodeBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		codeStore = sessioncode.NewRedisStore(rdb, "authcore")
	default:
		codeStore = sessioncode.NewMemoryStore()
	}
	exchange := sessioncode.NewExchange(codeStore, sessioncode.WithLogger(logger))

	provider := identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityServiceKey, logger)
	runtime := authcore.New(provider, profiles, authcore.Options{
		Resolver: exchange,
		Logger:   &logger,
	})
	if err := runtime.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start auth runtime")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	echoapi.NewAuthCallbackAPI(exchange, runtime, cfg.CallbackRedirectBase).RegisterRoutes(e)

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit
	logger.Info().Str("signal", receivedSignal.String()).Msg("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	runtime.Stop()
	if err := codeStore.Close(); err != nil {
		logger.Error().Err(err).Msg("Session code store close error")
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("TracerProvider shutdown error")
		}
	}
	if err := mongodb.Disconnect(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("MongoDB disconnect error")
	}

	logger.Info().Msg("Server gracefully stopped")
}
