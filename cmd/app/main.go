package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/amberline/crawlcore/internal/api"
	"github.com/amberline/crawlcore/internal/crawl"
	"github.com/amberline/crawlcore/internal/planner"
	"github.com/amberline/crawlcore/internal/priority"
	"github.com/amberline/crawlcore/internal/queue"
	"github.com/amberline/crawlcore/internal/store"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds service configuration loaded from the environment
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	SentryDSN string
	RedisAddr string
	KeyPrefix string
	CrawlTTL  time.Duration
}

func loadConfig() *Config {
	return &Config{
		Port:      getEnvWithDefault("PORT", "8080"),
		Env:       getEnvWithDefault("APP_ENV", "development"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		SentryDSN: os.Getenv("SENTRY_DSN"),
		RedisAddr: getEnvWithDefault("REDIS_ADDR", "localhost:6379"),
		KeyPrefix: getEnvWithDefault("REDIS_KEY_PREFIX", "crawlcore:"),
		CrawlTTL:  time.Duration(getEnvInt("CRAWL_TTL_HOURS", 24)) * time.Hour,
	}
}

// setupLogging configures zerolog based on the environment
func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func main() {
	// Load .env files - .env.local takes priority for development
	godotenv.Load(".env.local", ".env")

	config := loadConfig()
	setupLogging(config)

	// Initialise Sentry for error tracking and performance monitoring
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: config.Env,
			TracesSampleRate: func() float64 {
				if config.Env == "production" {
					return 0.1 // 10% sampling in production
				}
				return 1.0
			}(),
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", config.Env).Msg("Sentry initialised successfully")
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	// Connect to the shared store/queue backend
	redisClient := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", config.RedisAddr).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	log.Info().Str("addr", config.RedisAddr).Msg("Connected to Redis")

	// Wire the orchestration engine
	crawlStore := store.NewRedisStore(redisClient, config.KeyPrefix, config.CrawlTTL)
	jobQueue := queue.NewRedisQueue(redisClient, config.KeyPrefix+"queue:", config.CrawlTTL)
	scheduler := priority.NewScheduler(jobQueue)
	crawlPlanner := planner.New(planner.DefaultConfig())
	orchestrator := crawl.NewOrchestrator(crawlStore, jobQueue, crawlPlanner, scheduler)

	apiHandler := api.NewHandler(orchestrator)

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Add middleware in reverse order (outermost first)
	var handler http.Handler = mux
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)

	server := &http.Server{
		Addr:    ":" + config.Port,
		Handler: handler,
	}

	// Channel to listen for termination signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		<-stop
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Str("port", config.Port).Msg("Starting server")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Server error")
	}

	<-done
	log.Info().Msg("Server stopped")
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer in environment, using default")
		return defaultValue
	}
	return result
}
