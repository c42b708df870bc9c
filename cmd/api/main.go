package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-identity/internal/config"
	delivery "github.com/FilipeAphrody/sentinel-identity/internal/delivery/http"
	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/logs"
	"github.com/FilipeAphrody/sentinel-identity/internal/notify"
	"github.com/FilipeAphrody/sentinel-identity/internal/repository"
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, err := logs.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("invalid log configuration", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server exiting")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 1. Initialize Infrastructure (Persistence)
	rdb, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "connect to redis")
	}

	accounts, closeStore, err := newAccountRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. Initialize Repositories and Gateways
	tokenRepo := repository.NewRedisTokenRepo(rdb)

	links := notify.NewLinkBuilder(cfg.FrontendURL)
	var notifier domain.Notifier
	switch cfg.Notifier {
	case config.NotifierRedis:
		notifier = notify.NewRedisStreamNotifier(rdb, notify.DefaultStream, links)
	default:
		notifier = notify.NewLogNotifier(logger, links)
	}

	// 3. Initialize Business Logic (Usecases)
	issuer := security.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	authUsecase, err := usecase.NewAuthUsecase(usecase.Deps{
		Accounts: accounts,
		Tokens:   tokenRepo,
		Notifier: notifier,
		Hasher:   security.NewPasswordHasher(cfg.PasswordHashCost),
		Issuer:   issuer,
		TOTP:     security.NewTOTPEngine(cfg.TOTPSkewSteps),
		Logger:   logger,
	}, usecase.Options{
		AccessTokenTTL:         cfg.AccessTokenTTL,
		RefreshTokenTTL:        cfg.RefreshTokenTTL,
		VerificationTokenTTL:   cfg.VerificationTokenTTL,
		ResetTokenTTL:          cfg.ResetTokenTTL,
		TOTPIssuer:             cfg.TOTPIssuer,
		TOTPReplayProtection:   cfg.TOTPReplayProtection,
		RefreshMismatchRevokes: cfg.RefreshMismatchRevokes,
		ConflictRetries:        cfg.ConflictRetries,
	})
	if err != nil {
		return err
	}

	// 4. Register Delivery Handlers (Routes)
	e := delivery.NewRouter(logger, authUsecase, issuer)

	// 5. Start Server with Graceful Shutdown
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting sentinel identity server", slog.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Wrap(e.Shutdown(shutdownCtx), "server forced to shutdown")
}

// newRedisClient accepts either a redis:// URL or a bare host:port.
func newRedisClient(raw string) (*redis.Client, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parse REDIS_URL")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}

func newAccountRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.AccountRepository, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory account store, data is lost on restart")
		return repository.NewMemoryAccountRepo(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DBURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "connect to postgres")
	}

	if cfg.MigrateOnStart {
		if err := repository.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied")
	}

	return repository.NewPostgresAccountRepo(db), func() { db.Close() }, nil
}
