package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// Process is the part of every binary that precedes its own wiring: loaded
// config, a configured logger and a reachable, migrated database. Resources
// registered with Defer are closed in reverse order by Close.
type Process struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Start boots a process of the given kind or exits after logging why not.
func Start(ctx context.Context, kind string) *Process {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, "process.dotenv_missing")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "process.config_invalid", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind

	p := &Process{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}

	p.DB, err = db.New(ctx, cfg.DB, p.Logger)
	p.Must(ctx, "database", err)
	p.Defer("database", p.DB.Close)
	p.Must(ctx, "dev migrations", migrate.MaybeRunDev(ctx, cfg, p.Logger, p.DB))
	return p
}

// Redis connects to the configured Redis and registers it for Close.
func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	p.Must(ctx, "redis", err)
	p.Defer("redis", client.Close)
	return client
}

func (p *Process) Defer(name string, fn func() error) {
	p.closers = append(p.closers, namedCloser{name: name, fn: fn})
}

// Close releases deferred resources, newest first, and joins their errors.
func (p *Process) Close() error {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, &closeError{name: c.name, err: err})
		}
	}
	p.closers = nil
	return errs
}

// Must exits the process when err is set, closing what was already opened.
func (p *Process) Must(ctx context.Context, step string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(p.Logger.WithField(ctx, "step", step), "process.bootstrap_failed", err)
	p.shutdown(ctx)
	os.Exit(1)
}

// Exit closes resources and terminates with a status derived from err. A
// cancelled context counts as a clean stop.
func (p *Process) Exit(ctx context.Context, err error) {
	code := 0
	if err != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Error(ctx, "process.stopped_unexpectedly", err)
		code = 1
	} else {
		p.Logger.Info(ctx, "process.stopped")
	}
	p.shutdown(ctx)
	os.Exit(code)
}

func (p *Process) shutdown(ctx context.Context) {
	if err := p.Close(); err != nil {
		p.Logger.Error(ctx, "process.close_failed", err)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// identity as log fields.
func (p *Process) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{"env": p.Config.App.Env, "service_kind": p.Config.Service.Kind}
	for k, v := range fields {
		base[k] = v
	}
	return p.Logger.WithFields(ctx, base), stop
}

// Serve runs srv inside g until ctx is done, then shuts it down within grace.
// onStop hooks run after the server stops accepting requests.
func Serve(ctx context.Context, g *errgroup.Group, srv *http.Server, grace time.Duration, onStop ...func()) {
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		for _, fn := range onStop {
			fn()
		}
		return err
	})
}

type closeError struct {
	name string
	err  error
}

func (e *closeError) Error() string { return "close " + e.name + ": " + e.err.Error() }
func (e *closeError) Unwrap() error { return e.err }
