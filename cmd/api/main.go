// Command api is the Agnox Producer entrypoint: wires every internal
// component (identity, store, plan, dispatch, queue, realtime, ingest,
// cron, reporttoken, ratelimit, analytics) and serves the HTTP surface
// described in spec.md §6, following the teacher's construct-register-
// defer-stop wiring style.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/agnox/producer/internal/analytics"
	"github.com/agnox/producer/internal/config"
	"github.com/agnox/producer/internal/cron"
	"github.com/agnox/producer/internal/dispatch"
	"github.com/agnox/producer/internal/handlers"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/infra"
	"github.com/agnox/producer/internal/ingest"
	"github.com/agnox/producer/internal/plan"
	"github.com/agnox/producer/internal/queue"
	"github.com/agnox/producer/internal/ratelimit"
	"github.com/agnox/producer/internal/realtime"
	"github.com/agnox/producer/internal/reporttoken"
	"github.com/agnox/producer/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := config.Get()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("agnox-producer: starting", "env", cfg.Server.Env, "port", cfg.GetPort())

	st, err := store.NewWithCredentials(cfg.GetSupabaseURL(), cfg.GetSupabaseKey())
	if err != nil {
		slog.Error("failed to connect to tenant store", "error", err)
		os.Exit(1)
	}

	crypto, err := store.NewEnvCrypto(cfg.Secrets.EnvVarKeyHex)
	if err != nil {
		slog.Error("failed to initialize env-var crypto", "error", err)
		os.Exit(1)
	}

	rdb, redisAdapter := connectRedis(cfg)

	var ingestCache ingest.SessionStore
	sessionTTL := time.Duration(cfg.Ingest.SessionTTLHours) * time.Hour
	if rdb != nil {
		ingestCache = ingest.NewRedisSessionStore(rdb)
	} else {
		ingestCache = ingest.NewMemorySessionStore()
		sessionTTL = time.Duration(cfg.Ingest.FallbackTTLHours) * time.Hour
	}

	limiter := ratelimit.New(rdb, map[ratelimit.Tier]int{
		ratelimit.TierGeneral:         cfg.RateLimit.GeneralPerMinute,
		ratelimit.TierIngestLifecycle: cfg.RateLimit.IngestLifecyclePerMinute,
		ratelimit.TierIngestEvent:     cfg.RateLimit.IngestEventPerMinute,
	})

	hub := realtime.NewHub()
	go hub.Run()
	if redisAdapter != nil {
		if fanout, err := realtime.NewRedisFanOut(redisAdapter, "realtime:", hub); err != nil {
			slog.Warn("realtime cross-instance fan-out unavailable", "error", err)
		} else {
			hub.SetFanOut(fanout)
		}
	}

	jwtIssuer := identity.NewJWTIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTTTLSec)*time.Second)
	apiKeyIssuer := identity.NewAPIKeyIssuer(st)
	workerAuth := identity.NewWorkerAuthenticator(cfg.Worker.CallbackSecret, cfg.Worker.CallbackTransition)
	authenticator := identity.NewAuthenticator(jwtIssuer, apiKeyIssuer, workerAuth)

	enforcer := plan.NewEnforcer(st)
	q := buildQueue(cfg)
	pipeline := dispatch.NewPipeline(st, crypto, enforcer, q, hub, cfg.InjectEnv)

	scheduler := cron.NewScheduler(pipeline)
	if err := scheduler.LoadActive(context.Background(), st); err != nil {
		slog.Warn("failed to load active schedules at startup", "error", err)
	}
	scheduler.Start()

	ingestManager := ingest.NewManager(st, ingestCache, hub, ingest.Config{
		SessionTTL: sessionTTL,
		LiveLogTTL: time.Duration(cfg.Ingest.LiveLogTTLHours) * time.Hour,
		ArchiveTTL: time.Duration(cfg.Ingest.ArchiveTTLDays) * 24 * time.Hour,
	})

	reportTokens := reporttoken.NewService(cfg.Reports.HMACSecret, time.Duration(cfg.Reports.TTLSeconds)*time.Second)
	aggregator := analytics.NewAggregator(st)

	router := buildRouter(routerDeps{
		cfg: cfg, store: st, crypto: crypto, authenticator: authenticator, workerAuth: workerAuth,
		enforcer: enforcer, pipeline: pipeline, rdb: rdb, ingestManager: ingestManager,
		ingestCache: ingestCache, limiter: limiter, hub: hub, scheduler: scheduler,
		reportTokens: reportTokens, aggregator: aggregator, apiKeyIssuer: apiKeyIssuer, jwtIssuer: jwtIssuer,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.GetPort(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	go func() {
		slog.Info("agnox-producer: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("agnox-producer: shutting down")
	scheduler.StopAllJobs()
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	slog.Info("agnox-producer: stopped")
}

// connectRedis dials a direct *redis.Client for the ingest cache, rate
// limiter and execution metrics, plus an infra.GoRedisAdapter for the
// realtime fan-out's Subscribe/Publish pair. Both fall back to nil on any
// connectivity failure; callers degrade to their in-memory/local paths.
func connectRedis(cfg *config.Config) (*redis.Client, *infra.GoRedisAdapter) {
	if !cfg.Redis.Enabled {
		slog.Info("redis disabled by config, using in-memory fallback stores")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, falling back to in-memory ingest/ratelimit stores", "error", err)
		return nil, nil
	}

	adapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Warn("realtime fan-out adapter unavailable", "error", err)
		return rdb, nil
	}
	return rdb, adapter
}

func buildQueue(cfg *config.Config) queue.Queue {
	if !cfg.Queue.Enabled {
		return queue.NewMemoryQueue(cfg.Queue.Prefetch, nil)
	}
	q, err := queue.NewAMQPQueue(cfg.Queue.URL, cfg.Queue.Name, cfg.Queue.MaxPrio)
	if err != nil {
		slog.Warn("amqp queue unavailable, falling back to in-memory queue", "error", err)
		return queue.NewMemoryQueue(cfg.Queue.Prefetch, nil)
	}
	return q
}

// routerDeps collects every collaborator buildRouter needs, mirroring the
// teacher's practice of constructing handlers from already-wired services
// rather than threading dozens of positional arguments.
type routerDeps struct {
	cfg           *config.Config
	store         *store.Store
	crypto        *store.EnvCrypto
	authenticator *identity.Authenticator
	workerAuth    *identity.WorkerAuthenticator
	enforcer      *plan.Enforcer
	pipeline      *dispatch.Pipeline
	rdb           *redis.Client
	ingestManager *ingest.Manager
	ingestCache   ingest.SessionStore
	limiter       *ratelimit.Limiter
	hub           *realtime.Hub
	scheduler     *cron.Scheduler
	reportTokens  *reporttoken.Service
	aggregator    *analytics.Aggregator
	apiKeyIssuer  *identity.APIKeyIssuer
	jwtIssuer     *identity.JWTIssuer
}

func buildRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()
	r.Use(handlers.SecurityHeaders(d.cfg.IsProduction()))
	r.Use(handlers.CORS(d.cfg.Server.CORSAllowOrigins))

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/config/defaults", handlers.ConfigDefaults).Methods(http.MethodGet)

	authHandler := handlers.NewAuthHandler(d.store, d.jwtIssuer)
	r.HandleFunc("/api/auth/signup", authHandler.Signup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/plans", handlers.PlansCatalogue).Methods(http.MethodGet)

	verify := func(token string) (realtime.HandshakeIdentity, error) {
		p, err := d.jwtIssuer.Verify(token)
		if err != nil {
			return realtime.HandshakeIdentity{}, err
		}
		return realtime.HandshakeIdentity{OrgID: p.OrgID, UserID: p.UserID, Role: string(p.Role)}, nil
	}
	r.HandleFunc("/realtime/ws", d.hub.HandleWebSocket(verify)).Methods(http.MethodGet)

	reportMw := handlers.NewReportMiddleware(d.reportTokens, time.Duration(d.cfg.Reports.TTLSeconds)*time.Second)
	r.PathPrefix("/reports/").Handler(reportMw.Wrap(http.FileServer(http.Dir(d.cfg.Reports.Dir))))

	callback := handlers.NewCallbackHandler(d.store, d.ingestCache, d.hub)
	worker := r.PathPrefix("/executions").Subrouter()
	worker.HandleFunc("/update", d.workerAuth.RequireWorkerSecret(callback.UpdateExecution)).Methods(http.MethodPost)
	worker.HandleFunc("/log", d.workerAuth.RequireWorkerSecret(callback.AppendLog)).Methods(http.MethodPost)

	ingestHandler := handlers.NewIngestHandler(d.ingestManager, d.limiter)
	ingestRouter := r.PathPrefix("/api/ingest").Subrouter()
	ingestRouter.Use(authMiddleware(d.authenticator))
	ingestRouter.HandleFunc("/setup", ingestHandler.Setup).Methods(http.MethodPost)
	ingestRouter.HandleFunc("/event", ingestHandler.Event).Methods(http.MethodPost)
	ingestRouter.HandleFunc("/teardown", ingestHandler.Teardown).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware(d.authenticator))
	api.Use(handlers.RateLimited(d.limiter, ratelimit.TierGeneral))
	api.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)

	userHandler := handlers.NewUserHandler(d.store, d.enforcer)
	api.HandleFunc("/users", userHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/users", identity.AdminOnly(userHandler.Invite)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/role", identity.AdminOnly(userHandler.UpdateRole)).Methods(http.MethodPatch)

	execHandler := handlers.NewExecutionHandler(d.store, d.pipeline, d.rdb)
	api.HandleFunc("/execution-request", identity.DeveloperOrAdmin(execHandler.Dispatch)).Methods(http.MethodPost)
	api.HandleFunc("/executions", execHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/executions/{id}", identity.DeveloperOrAdmin(execHandler.Delete)).Methods(http.MethodDelete)
	api.HandleFunc("/metrics/{image}", execHandler.Metrics).Methods(http.MethodGet)

	analyticsHandler := handlers.NewAnalyticsHandler(d.aggregator)
	api.HandleFunc("/analytics/kpis", analyticsHandler.KPIs).Methods(http.MethodGet)

	projectHandler := handlers.NewProjectHandler(d.store, d.enforcer)
	api.HandleFunc("/projects", identity.DeveloperOrAdmin(projectHandler.Create)).Methods(http.MethodPost)
	api.HandleFunc("/projects", projectHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", identity.DeveloperOrAdmin(projectHandler.Update)).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}", identity.DeveloperOrAdmin(projectHandler.Delete)).Methods(http.MethodDelete)

	envVarHandler := handlers.NewEnvVarHandler(d.store, d.crypto)
	api.HandleFunc("/projects/{id}/env", envVarHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/env", identity.DeveloperOrAdmin(envVarHandler.Create)).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/env/{varId}", identity.DeveloperOrAdmin(envVarHandler.Update)).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}/env/{varId}", identity.DeveloperOrAdmin(envVarHandler.Delete)).Methods(http.MethodDelete)

	cycleHandler := handlers.NewTestCycleHandler(d.store)
	api.HandleFunc("/test-cycles", identity.DeveloperOrAdmin(cycleHandler.Create)).Methods(http.MethodPost)
	api.HandleFunc("/test-cycles", cycleHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/test-cycles/{id}", cycleHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/test-cycles/{id}", identity.DeveloperOrAdmin(cycleHandler.Update)).Methods(http.MethodPut)
	api.HandleFunc("/test-cycles/{id}/items", identity.DeveloperOrAdmin(cycleHandler.AddItem)).Methods(http.MethodPost)
	api.HandleFunc("/test-cycles/{id}/items/{itemId}", identity.DeveloperOrAdmin(cycleHandler.UpdateItem)).Methods(http.MethodPut)

	scheduleHandler := handlers.NewScheduleHandler(d.store, d.scheduler)
	api.HandleFunc("/schedules", identity.DeveloperOrAdmin(scheduleHandler.Create)).Methods(http.MethodPost)
	api.HandleFunc("/schedules", scheduleHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id}", identity.DeveloperOrAdmin(scheduleHandler.Delete)).Methods(http.MethodDelete)

	apiKeyHandler := handlers.NewAPIKeyHandler(d.apiKeyIssuer)
	api.HandleFunc("/keys", identity.AdminOnly(apiKeyHandler.Create)).Methods(http.MethodPost)
	api.HandleFunc("/keys", identity.AdminOnly(apiKeyHandler.List)).Methods(http.MethodGet)
	api.HandleFunc("/keys/{id}", identity.AdminOnly(apiKeyHandler.Delete)).Methods(http.MethodDelete)

	return r
}

// authMiddleware adapts identity.Authenticator.Middleware (which wraps an
// http.HandlerFunc) to the mux.MiddlewareFunc shape (which wraps an
// http.Handler) expected by Router.Use.
func authMiddleware(a *identity.Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return a.Middleware(next.ServeHTTP)
	}
}
