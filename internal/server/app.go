// Package server assembles the account service from its configuration and
// runs the HTTP API, the gRPC health endpoint and the profile-image consumer
// until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/cache"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/consumer"
	"github.com/dmitrijs2005/authkeeper/internal/server/images"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/rest"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/timex"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	http     *rest.Server
	health   *gs.HealthServer
	consumer *consumer.Consumer
	closers  []io.Closer
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	clock := timex.Real()
	app := &App{config: c, logger: logger}

	defer func() {
		if err != nil {
			app.close()
		}
	}()

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, db)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if c.RunMigrations {
		if err := repos.RunMigrations(ctx, db); err != nil {
			return nil, err
		}
	}

	store, err := app.newCache(ctx, clock)
	if err != nil {
		return nil, err
	}
	notifier, err := newNotifier(c, logger)
	if err != nil {
		return nil, err
	}
	resolver, err := newResolver(ctx, c)
	if err != nil {
		return nil, err
	}
	hasher, err := cryptox.NewPasswordHasher(c.PasswordHashAlgorithm, c.PasswordHashKey)
	if err != nil {
		return nil, err
	}
	codec := auth.NewJWTCodec(c.JWTSecret, c.JWTIssuer, c.JWTAudience, c.AccessTokenTTL, clock)

	ttls := services.CacheTTLs{
		Entity: cache.Options{Sliding: c.EntityCacheSliding, Absolute: c.EntityCacheAbsolute},
		List:   cache.Options{Sliding: c.ListCacheSliding, Absolute: c.ListCacheAbsolute},
		Total:  cache.Options{Sliding: c.TotalCacheSliding, Absolute: c.TotalCacheAbsolute},
	}
	tx := dbx.NewSQLTransactor(db, nil)

	accounts := services.NewAccountStore(tx, repos, store, ttls, c.RefreshTokenTTL, clock, logger)
	pending := services.NewPendingStore(tx, repos, store, ttls.Entity, logger)
	sessions := services.NewSessions(accounts, codec, hasher, logger)
	registration := services.NewRegistration(accounts, pending, sessions, hasher, notifier, clock, c.ConfirmationCodeTTL, logger)
	profiles := services.NewProfiles(accounts, resolver, logger)

	app.http = rest.NewServer(c.HTTPAddr, rest.NewHandler(registration, sessions, profiles, logger), logger)
	app.health = gs.NewHealthServer(c.GRPCHealthAddr, logger)
	if c.AMQPURL != "" {
		app.consumer = consumer.NewConsumer(consumer.NewAMQPSubscriber(c.AMQPURL, c.AMQPQueue), profiles, logger)
	}

	return app, nil
}

// newCache connects to Redis when a URL is configured and falls back to the
// in-process cache otherwise.
func (app *App) newCache(ctx context.Context, clock timex.Clock) (cache.Cache, error) {
	if app.config.RedisURL == "" {
		app.logger.Info(ctx, "using in-process cache")
		return cache.NewMemoryCache(clock), nil
	}
	client, err := cache.NewRedisClient(ctx, app.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client)
	return cache.NewRedisCache(client, clock), nil
}

func newNotifier(c *config.Config, logger logging.Logger) (notify.Notifier, error) {
	if c.SMTPHost == "" {
		return notify.NewLogNotifier(logger), nil
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		SenderName:  c.SMTPSenderName,
		SenderEmail: c.SMTPSenderEmail,
		Host:        c.SMTPHost,
		Port:        c.SMTPPort,
		Password:    c.SMTPPassword,
	})
}

func newResolver(ctx context.Context, c *config.Config) (images.URLResolver, error) {
	if c.S3Bucket == "" {
		return images.NewStaticResolver(c.ProfileImageBaseURL), nil
	}
	return images.NewS3Resolver(ctx, images.S3Config{
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		Expires:   c.ImageURLTTL,
	})
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(context.Background(), "closing resource", "error", err)
		}
	}
	app.closers = nil
}

// Run serves until ctx is cancelled or SIGINT, SIGTERM or SIGQUIT arrives.
// The first component to fail stops the others.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.close()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.http.Run(ctx) })
	g.Go(func() error { return app.health.Run(ctx) })
	if app.consumer != nil {
		g.Go(func() error { return app.consumer.Run(ctx) })
	}

	app.health.SetServing(true)
	go func() {
		<-ctx.Done()
		app.health.SetServing(false)
	}()

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "app stopped", "error", err)
	} else {
		app.logger.Info(ctx, "Stopping app...")
	}
	return err
}
