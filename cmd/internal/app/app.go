// Package app wires the QuoteBid server runtime: config, logging, stores,
// the auth API and the session socket.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity"
	authapi "github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/api"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/denylist"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/session"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/realtime"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App owns the listeners and the resources they share.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	redis     *redis.Client

	sessions *session.Service
	ws       *realtime.Gateway
	auth     *authapi.Handler
	registry *prometheus.Registry

	pruneEvery time.Duration
}

// New builds a fully wired App. Without QB_DATABASE_URL users and sessions
// live in memory; without QB_REDIS_ADDR the bearer denylist does.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		log:        log,
		registry:   prometheus.NewRegistry(),
		pruneEvery: EnvDuration("QB_SESSION_PRUNE_INTERVAL", 10*time.Minute),
	}

	users, sessStore, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	deny, err := a.openDenylist(ctx)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.sessions = session.NewService(sessCfg, sessStore, tokens,
		session.WithDenylist(deny),
		session.WithHasher(hasher),
		session.WithLogger(log),
	)

	authn, err := identity.NewAuthenticator(users, pwCfg, log)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	if err := a.seedDevUser(ctx, authn); err != nil {
		a.closeResources()
		return nil, err
	}

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotebid",
		Subsystem: "auth",
		Name:      "rejections_total",
		Help:      "Requests rejected by the auth layer, by reason.",
	}, []string{"reason"})
	sockets := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quotebid",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Open session sockets.",
	})
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		rejections,
		sockets,
	)

	hub := realtime.NewHub(log)
	a.ws, err = realtime.NewGateway(log, realtime.LoadGatewayConfigFromEnv(), hub, a.sessions,
		realtime.WithSessionChecker(a.sessions),
		realtime.WithConnectionGauge(sockets),
	)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, authn, a.sessions,
		authapi.WithNotifier(hub),
		authapi.WithRejectionCounter(rejections),
	)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	return a, nil
}

func (a *App) openStores(ctx context.Context) (identity.Store, session.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		users := identity.NewMemoryStore()
		sessions := session.NewMemoryStore()
		users.OnDelete = sessions.DropUser
		return users, sessions, nil
	}

	if a.cfg.AutoMigrate {
		if err := migrateUp(a.cfg.DatabaseURL, a.log); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true
	a.log.Info("db.enabled.postgres_store")

	return identity.NewPostgresStore(pool), session.NewPostgresStore(pool), nil
}

func (a *App) openDenylist(ctx context.Context) (session.Denylist, error) {
	if a.cfg.RedisAddr == "" {
		return denylist.NewMemory(), nil
	}
	client, err := denylist.Dial(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.redis = client
	a.log.Info("denylist.redis", "addr", a.cfg.RedisAddr)
	return denylist.NewRedis(client, denylist.DefaultPrefix), nil
}

func (a *App) seedDevUser(ctx context.Context, authn *identity.Authenticator) error {
	if a.cfg.DevSeedUser == "" || a.cfg.DevSeedPassword == "" {
		return nil
	}
	u, err := authn.Register(ctx, a.cfg.DevSeedUser, a.cfg.DevSeedPassword, time.Now().UTC())
	switch {
	case identity.IsConflict(err):
		a.log.Info("dev.seed.exists", "username", a.cfg.DevSeedUser)
		return nil
	case err != nil:
		return fmt.Errorf("dev seed: %w", err)
	}
	a.log.Warn("dev.seed.created", "username", u.Username, "user_id", u.ID)
	return nil
}

func (a *App) closeResources() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

// Handler is the HTTP API with its middleware chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.registry)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log)
	return WithRequestID(h)
}

// WSHandler serves the session socket on its own listener.
func (a *App) WSHandler() http.Handler {
	return WithRequestID(WithRequestLogging(a.ws, a.log))
}

// Run serves both listeners until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.closeResources()

	api := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	// Sockets are long-lived: no read or write deadline on this server.
	ws := &http.Server{
		Addr:              a.cfg.WSAddr,
		Handler:           a.WSHandler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "http_addr", api.Addr, "ws_addr", ws.Addr, "db_enabled", a.dbEnabled, "redis", a.redis != nil)

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{api, ws} {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go a.pruneLoop(pruneCtx)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range []*http.Server{api, ws} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "addr", srv.Addr, "err", err)
			runErr = errors.Join(runErr, err)
		}
	}

	a.log.Info("server.stopped")
	return runErr
}

// pruneLoop deletes expired session rows periodically.
func (a *App) pruneLoop(ctx context.Context) {
	t := time.NewTicker(a.pruneEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.sessions.PruneExpired(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
				a.log.Warn("session.prune.fail", "err", err)
			}
		}
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
