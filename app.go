package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spacearena/lead-pipeline/charges"
	"github.com/spacearena/lead-pipeline/database"
	campaigncontacts "github.com/spacearena/lead-pipeline/entities/campaign_contacts"
	"github.com/spacearena/lead-pipeline/entities/funnels"
	"github.com/spacearena/lead-pipeline/metrics"
	"github.com/spacearena/lead-pipeline/middlewares"
	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/utils"
)

type store interface {
	pipeline.StageStore
	pipeline.ContactStore
	pipeline.HistoryStore
	Ping(ctx context.Context) error
}

type backends struct {
	store   store
	locker  pipeline.Locker
	jobs    pipeline.JobStore
	charges pipeline.ChargeGateway
	closers []func()
}

type app struct {
	cfg      utils.Config
	logger   *slog.Logger
	store    store
	engine   *pipeline.Engine
	bulk     *pipeline.BulkProcessor
	registry *pipeline.Registry
	funnel   *pipeline.FunnelAggregator
	history  *pipeline.HistoryReader
	hub      *funnels.Hub
	metrics  *metrics.Collector
	closers  []func()
}

func newLogger(environment string) *slog.Logger {
	if environment == utils.ENV_RELEASE {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// connectBackends opens the stores selected by cfg. Redis and MySQL are
// optional: without them locks and bulk progress stay in process and charges
// are refused.
func connectBackends(ctx context.Context, cfg utils.Config, logger *slog.Logger) (backends, error) {
	b := backends{}

	switch cfg.StoreDriver {
	case utils.STORE_DRIVER_MEMORY:
		b.store = database.NewMemoryStore()
	default:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return backends{}, err
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })

		mongoStore := database.NewMongoStore(client.Database(database.GetDB(cfg.Env)))
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			b.close()
			return backends{}, err
		}
		b.store = mongoStore
	}

	if cfg.RedisURI != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisURI)
		if err != nil {
			b.close()
			return backends{}, err
		}
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		b.locker = database.NewRedisLocker(rdb, cfg.LockTTL)
		b.jobs = database.NewRedisJobStore(rdb, cfg.BulkJobTTL)
	} else {
		logger.Warn("REDIS_URI not set, contact locks and bulk progress are process-local")
		b.locker = pipeline.NewKeyedLocker()
		b.jobs = database.NewMemoryJobStore()
	}

	if cfg.MySQLURI != "" {
		db, err := database.OpenMySQL(ctx, cfg.MySQLURI)
		if err != nil {
			b.close()
			return backends{}, err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.charges = charges.NewLedgerGateway(db)
	} else {
		logger.Warn("MYSQL_URI not set, charge-on-entry stages will report charge warnings")
		b.charges = charges.Disabled{}
	}

	return b, nil
}

func (b backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func assemble(cfg utils.Config, logger *slog.Logger, b backends) *app {
	collector := metrics.NewCollector()
	hub := funnels.NewHub(logger)

	registry := pipeline.NewRegistry(b.store)
	engine := pipeline.NewEngine(registry, b.store, b.store, b.charges,
		pipeline.WithLocker(b.locker),
		pipeline.WithChargeTimeout(cfg.ChargeTimeout),
		pipeline.WithLockWait(cfg.LockWait),
		pipeline.WithObservers(collector, hub),
		pipeline.WithLogger(logger),
	)
	bulk := pipeline.NewBulkProcessor(engine,
		pipeline.WithJobStore(b.jobs),
		pipeline.WithConcurrency(cfg.BulkConcurrency),
		pipeline.WithMaxContacts(cfg.BulkMaxContacts),
		pipeline.WithBulkObservers(collector, hub),
		pipeline.WithBulkLogger(logger),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    b.store,
		engine:   engine,
		bulk:     bulk,
		registry: registry,
		funnel:   pipeline.NewFunnelAggregator(registry, b.store, b.store),
		history:  pipeline.NewHistoryReader(b.store, b.store, b.store),
		hub:      hub,
		metrics:  collector,
		closers:  b.closers,
	}
}

func buildApp(ctx context.Context, cfg utils.Config, logger *slog.Logger) (*app, error) {
	b, err := connectBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, logger, b), nil
}

func (a *app) close() {
	backends{closers: a.closers}.close()
}

func (a *app) routes(auth func(http.Handler) http.Handler) http.Handler {
	contacts := &campaigncontacts.Handler{Engine: a.engine, Bulk: a.bulk, History: a.history, Logger: a.logger}
	funnel := &funnels.Handler{Stages: a.registry, Funnel: a.funnel}

	mux := http.NewServeMux()

	mux.Handle("PATCH /v1/campaigns/{campaignId}/contacts/{contactId}/stage", auth(http.HandlerFunc(contacts.UpdateOneStage)))
	mux.Handle("POST /v1/campaigns/{campaignId}/contacts/bulk-stage-update", auth(http.HandlerFunc(contacts.BulkUpdateStage)))
	mux.Handle("DELETE /v1/campaigns/{campaignId}/bulk-jobs/{jobId}", auth(http.HandlerFunc(contacts.CancelBulkJob)))
	mux.Handle("GET /v1/campaigns/{campaignId}/contacts/{contactId}/stage-history", auth(http.HandlerFunc(contacts.GetStageHistory)))
	mux.Handle("GET /v1/campaigns/{campaignId}/funnel", auth(http.HandlerFunc(funnel.GetFunnel)))
	mux.Handle("GET /v1/campaigns/{campaignId}/stages", auth(http.HandlerFunc(funnel.GetAllStages)))

	mux.Handle("/v1/ws/funnels", a.hub)
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /healthz", a.healthz)

	return middlewares.RequestLogger(a.logger)(middlewares.SecurityHeaders(middlewares.Cors(a.cfg.Env)(mux)))
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Error("storage ping failed", "error", err)
		utils.SendResponse(w, http.StatusServiceUnavailable, "", nil, utils.CANNOT_REACH_STORAGE)
		return
	}
	utils.SendResponse(w, http.StatusOK, "ok", nil, 0)
}

func (a *app) address() string {
	return fmt.Sprintf(":%s", a.cfg.Port)
}
