package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"bookingdesk/backend/internal/config"
	"bookingdesk/backend/internal/events"
	"bookingdesk/backend/internal/service/bookings"
	"bookingdesk/backend/internal/store/postgres"
	"bookingdesk/backend/internal/telemetry"
	grpcTransport "bookingdesk/backend/internal/transport/grpc"
	"bookingdesk/backend/internal/transport/rest"
)

const serviceName = "bookingdesk-server"

func main() {
	slog.SetDefault(newLogger("info"))

	if err := run(); err != nil {
		slog.Default().Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// run owns every resource it opens, so each return path unwinds the deferred
// closes before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.Bool("grpc_enabled", cfg.GRPCEnabled),
		slog.String("timezone", cfg.Timezone.String()),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("err", err))
		}
	}()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	openCtx, cancelOpen := context.WithTimeout(ctx, 10*time.Second)
	db, err := postgres.Open(openCtx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	cancelOpen()
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return err
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	if cfg.DBAutoMigrate {
		if err := postgres.Migrate(ctx, db, log); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	publisher := newPublisher(cfg, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("event publisher close failed", slog.Any("err", err))
		}
	}()

	svc := bookings.NewService(postgres.NewBookingRepo(db),
		bookings.WithLocation(cfg.Timezone),
		bookings.WithPublisher(publisher),
		bookings.WithLogger(log),
	)

	limiter, closeLimiter := newLimiter(ctx, cfg, log)
	defer closeLimiter()

	dbReady := postgres.ReadyCheck(db)
	checks := []rest.ReadyCheck{{Name: "postgres", Check: dbReady}}

	cors := rest.DefaultCORSPolicy()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	httpServer := &http.Server{
		Handler: rest.NewRouter(
			rest.NewBookingsHandler(svc, log),
			rest.NewHealthHandler(log, checks...),
			log,
			rest.RouterOptions{
				RequestTimeout:  cfg.HTTPRequestTimeout,
				MaxBodyBytes:    cfg.HTTPMaxBodyBytes,
				CORS:            cors,
				Limiter:         limiter,
				LimiterFailOpen: true,
				Tracing:         cfg.OTelEnabled,
			},
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
	}

	// Both listeners are bound before anything serves, so a bad address
	// fails startup without a half-running process.
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen on %s: %w", cfg.HTTPAddr, err)
	}
	var grpcLis net.Listener
	if cfg.GRPCEnabled {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("grpc listen on %s: %w", cfg.GRPCAddr, err)
		}
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- httpServer.Serve(httpLis)
	}()
	log.Info("http server started", slog.String("http_addr", httpLis.Addr().String()))

	var grpcServer *grpc.Server
	if grpcLis != nil {
		health := grpcTransport.NewHealthServer(dbReady, cfg.GRPCHealthInterval, log)
		go health.Run(ctx)

		grpcServer = grpcTransport.NewServer(health, log, grpcTransport.ServerOptions{
			RequestTimeout: cfg.HTTPRequestTimeout,
			Tracing:        cfg.OTelEnabled,
		})
		go func() {
			errCh <- grpcServer.Serve(grpcLis)
		}()
		log.Info("grpc server started", slog.String("grpc_addr", grpcLis.Addr().String()))
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down http server", slog.Duration("timeout", cfg.ShutdownTimeout))
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}
	if grpcServer != nil {
		grpcTransport.Shutdown(log, grpcServer, cfg.ShutdownTimeout)
	}
	log.Info("stopped")
	return serveErr
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
}

func newPublisher(cfg config.Config, log *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("event publishing disabled")
		return events.Nop{}
	}
	p, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	if err != nil {
		log.Warn("kafka publisher unavailable; events disabled", slog.Any("err", err))
		return events.Nop{}
	}
	log.Info("publishing events to kafka", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTopic))
	return p
}

// newLimiter prefers a shared Redis window and falls back to a per-process
// one when Redis is not configured or unreachable at startup.
func newLimiter(ctx context.Context, cfg config.Config, log *slog.Logger) (rest.Limiter, func()) {
	if cfg.RateLimitRequests <= 0 {
		log.Info("rate limiting disabled")
		return nil, func() {}
	}
	if cfg.RedisAddr == "" {
		return rest.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable; using in-memory rate limiter", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
		_ = rdb.Close()
		return rest.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), func() {}
	}

	log.Info("using redis rate limiter", slog.String("redis_addr", cfg.RedisAddr))
	return rest.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, "bookingdesk:rl"), func() {
		if err := rdb.Close(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
