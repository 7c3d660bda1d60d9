package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/five82/zheye/internal/actions"
	"github.com/five82/zheye/internal/api"
	"github.com/five82/zheye/internal/config"
	"github.com/five82/zheye/internal/logger"
	"github.com/five82/zheye/internal/metrics"
	"github.com/five82/zheye/internal/session"
	"github.com/five82/zheye/internal/state"
	"github.com/five82/zheye/internal/ui"
)

const shutdownTimeout = 2 * time.Second

// Options configure the application.
type Options struct {
	ConfigPath string
	// LogFile overrides log.file from the configuration when non-empty.
	LogFile string
}

// App holds the wired components of one client session.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Client       *api.Client
	Store        *state.Store
	Orchestrator *actions.Orchestrator
	Registry     *prometheus.Registry

	// MetricsAddr is the bound address of the metrics endpoint, empty when off.
	MetricsAddr string

	closers []func() error
}

// New loads the configuration and wires logger, session store, API client,
// state store and orchestrator. The persisted token is restored into the
// store but not yet verified; call Bootstrap for that.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogFile != "" {
		cfg.Log.File = opts.LogFile
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	w, closeLog, err := logger.OpenFile(cfg.Log.File)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLog)
	a.Logger = logger.Setup(w, logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	tokens, err := a.openSession(ctx)
	if err != nil {
		return nil, err
	}
	token, err := tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(a.Registry)
	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			return nil, err
		}
	}

	a.Store = state.New(state.Options{
		Token:             token,
		Tokens:            tokens,
		Logger:            a.Logger,
		LoadingClearDelay: cfg.LoadingClearDelay,
	})

	clientOpts := []api.Option{
		api.WithTimeout(cfg.RequestTimeout),
		api.WithPartnerCode(cfg.PartnerCode),
		api.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		api.WithRecorder(collector),
		api.WithObserver(a.Store),
		api.WithLogger(a.Logger),
	}
	if cfg.Trace {
		tp, err := a.startTracing(w)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, api.WithTracerProvider(tp))
	}

	a.Client, err = api.NewClient(cfg.APIBaseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	if token != "" {
		a.Client.SetToken(token)
	}
	a.Store.SetCredentials(a.Client)

	a.Orchestrator = actions.New(a.Client, a.Store,
		actions.WithPageSize(cfg.PageSize),
		actions.WithMetrics(collector),
		actions.WithLogger(a.Logger),
	)

	a.Logger.Debug("app initialized",
		slog.String("api", a.Client.BaseURL()),
		slog.String("session_backend", cfg.Session.Backend),
		slog.Bool("token_restored", token != ""),
	)
	return a, nil
}

func (a *App) openSession(ctx context.Context) (session.Store, error) {
	switch a.Config.Session.Backend {
	case config.BackendRedis:
		rdb, err := session.DialRedis(ctx, a.Config.Session.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		return session.NewRedisStore(rdb, a.Config.Session.RedisKey), nil
	case config.BackendMemory:
		return &session.MemoryStore{}, nil
	default:
		fs, err := session.NewFileStore(a.Config.Session.Path)
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		return fs, nil
	}
}

func (a *App) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	srv := &http.Server{
		Handler:           metrics.Mux(a.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.MetricsAddr = ln.Addr().String()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

// startTracing exports API call spans to w, the log destination.
func (a *App) startTracing(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("init trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "zheye"))),
	)
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	return tp, nil
}

// Bootstrap verifies the restored token. A stale token is logged and
// discarded; only errors that leave the session unusable are returned.
func (a *App) Bootstrap(ctx context.Context) error {
	err := a.Orchestrator.Bootstrap(ctx)
	if errors.Is(err, actions.ErrStaleCredential) {
		a.Logger.Warn("discarded stale token", slog.String("error", err.Error()))
		return nil
	}
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run boots the terminal browser until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	a, err := New(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	return ui.Run(ui.Options{
		Context:      ctx,
		Orchestrator: a.Orchestrator,
		ThemeName:    a.Config.Theme,
	})
}
