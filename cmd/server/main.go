package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	authservice "eduid/internal/auth/service"
	"eduid/internal/auth/store/account"
	"eduid/internal/auth/store/revocation"
	"eduid/internal/auth/store/verification"
	"eduid/internal/auth/workers/cleanup"
	"eduid/internal/platform/config"
	"eduid/internal/platform/database"
	"eduid/internal/platform/health"
	"eduid/internal/platform/logger"
	"eduid/internal/platform/metrics"
	"eduid/internal/ratelimit"
	"eduid/internal/ratelimit/store/counter"
	rbacservice "eduid/internal/rbac/service"
	"eduid/internal/rbac/store/application"
	"eduid/internal/token"
	httptransport "eduid/internal/transport/http"
	"eduid/pkg/email"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New().Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New()
	m := metrics.New()

	log.Info("initializing eduid",
		"addr", cfg.Addr,
		"env", cfg.Env,
	)

	pool, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    database.DefaultConfig().MaxOpenConns,
		MaxIdleConns:    database.DefaultConfig().MaxIdleConns,
		ConnMaxLifetime: database.DefaultConfig().ConnMaxLifetime,
	})
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close() //nolint:errcheck // process is exiting

	// Without DATABASE_URL everything runs on the in-memory stores, which is
	// enough for local development.
	var (
		accounts    authservice.AccountStore
		roleSource  rbacservice.AccountSource
		tokenSource token.AccountSource
		revocations revocation.Registry
		codes       verification.Store
		counters    counter.Store
		apps        rbacservice.ApplicationStore

		revocationCleanup cleanup.RevocationStore
		codeCleanup       cleanup.CodeStore
		counterCleanup    cleanup.CounterStore
	)
	if pool != nil {
		pg := account.NewPostgres(pool.DB())
		accounts, roleSource, tokenSource = pg, pg, pg
		pgRevocations := revocation.NewPostgres(pool.DB())
		revocations, revocationCleanup = pgRevocations, pgRevocations
		pgCodes := verification.NewPostgres(pool.DB())
		codes, codeCleanup = pgCodes, pgCodes
		pgCounters := counter.NewPostgres(pool.DB())
		counters, counterCleanup = pgCounters, pgCounters
		apps = application.NewPostgres(pool.DB())
		log.Info("using postgres stores")
	} else {
		mem := account.NewMemory()
		accounts, roleSource, tokenSource = mem, mem, mem
		memRevocations := revocation.NewMemory()
		revocations, revocationCleanup = memRevocations, memRevocations
		memCodes := verification.NewMemory()
		codes, codeCleanup = memCodes, memCodes
		memCounters := counter.NewMemory()
		counters, counterCleanup = memCounters, memCounters
		apps = application.NewMemory(mem)
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	tokens, err := token.New(token.Config{
		Secret:     cfg.TokenSigningSecret,
		Algorithm:  cfg.TokenSigningAlg,
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, revocations, tokenSource, token.WithLogger(log))
	if err != nil {
		log.Error("token service init failed", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(counters, ratelimit.WithLogger(log))

	authSvc := authservice.New(accounts, tokens, codes, limiter,
		authservice.Config{
			BcryptCost:     cfg.BcryptCost,
			CodeTTL:        cfg.VerificationCodeTTL,
			CodeRateLimit:  cfg.CodeRateLimit,
			CodeRateWindow: cfg.CodeRateWindow,
		},
		authservice.WithLogger(log),
		authservice.WithMetrics(m),
		authservice.WithEmailSender(email.NewLogSender(log)),
	)

	roleSvc := rbacservice.New(apps, roleSource,
		rbacservice.WithLogger(log),
		rbacservice.WithMetrics(m),
	)

	hc := health.New(cfg.Env)
	if pool != nil {
		hc.RegisterCheck("database", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(checkCtx)
		})
	}

	handler := httptransport.NewHandler(authSvc, roleSvc, hc, log, m)
	router := httptransport.NewRouter(handler, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.CleanupInterval > 0 {
		sweeper, err := cleanup.New(revocationCleanup, codeCleanup, counterCleanup,
			cleanup.WithInterval(cfg.CleanupInterval),
			cleanup.WithLogger(log),
		)
		if err != nil {
			log.Error("cleanup worker init failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			err := sweeper.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
