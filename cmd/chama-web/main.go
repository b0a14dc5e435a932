// Command chama-web serves the MyChama browser frontend.
//
// Configuration comes from the environment (and a .env file when present).
// Without REDIS_ADDR in development an embedded miniredis is used, so
//
//	API_BASE_URL=http://localhost:8000/api go run ./cmd/chama-web
//
// is enough to try the login flow against a local platform.
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

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/internal"
	"github.com/MrEthical07/chamaWeb/internal/config"
	"github.com/MrEthical07/chamaWeb/internal/logging"
	"github.com/MrEthical07/chamaWeb/internal/web"
	otelexport "github.com/MrEthical07/chamaWeb/metrics/export/otel"
	promexport "github.com/MrEthical07/chamaWeb/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(!cfg.Production())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(cfg, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	keys, err := cookieKeys(cfg, log)
	if err != nil {
		return err
	}

	engine, err := chamaWeb.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithLogger(log.Named("engine")).
		WithAuditSink(chamaWeb.NewZapAuditSink(log.Named("audit"))).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	for _, w := range report.Warnings {
		log.Warn("security", zap.String("warning", w))
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promexport.NewPrometheusExporter(engine).Handler()
	}

	shutdownOTel, err := startOTel(ctx, cfg, engine, log)
	if err != nil {
		return err
	}
	defer shutdownOTel()

	srv, err := web.New(engine, keys, web.Options{
		PublicDir:       cfg.PublicDir,
		Secure:          cfg.Production(),
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         metricsHandler,
	}, log.Named("http"))
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Addr()),
			zap.String("env", cfg.Env),
			zap.String("api", cfg.APIBaseURL),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Int("live_handshakes", srv.ActiveHandshakes()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openRedis(cfg *config.Config, log *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded redis: %w", err)
	}
	log.Warn("REDIS_ADDR not set, using embedded redis; sessions are lost on restart",
		zap.String("addr", mr.Addr()))
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

func cookieKeys(cfg *config.Config, log *zap.Logger) (internal.CookieKeys, error) {
	secret := cfg.SessionSecret
	if secret == "" {
		generated, err := internal.RandomSecret(32)
		if err != nil {
			return internal.CookieKeys{}, err
		}
		secret = generated
		log.Warn("SESSION_SECRET not set, using a random secret; sessions end on restart")
	}
	return internal.DeriveCookieKeys([]byte(secret))
}

// startOTel pushes engine metrics over OTLP/gRPC when an endpoint is set.
func startOTel(ctx context.Context, cfg *config.Config, engine *chamaWeb.Engine, log *zap.Logger) (func(), error) {
	if cfg.OTLPEndpoint == "" || !cfg.MetricsEnabled {
		return func() {}, nil
	}

	exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(resource.Default()),
	)

	observer, err := otelexport.New(provider.Meter("github.com/MrEthical07/chamaWeb"), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	log.Info("otlp metrics enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	return func() {
		_ = observer.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("otlp shutdown", zap.Error(err))
		}
	}, nil
}
