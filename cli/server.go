package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/adonese/kaos/api"
	"github.com/adonese/kaos/cache"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/store"
	"github.com/adonese/kaos/utils"
	"github.com/adonese/kaos/visibility"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// app is the wired service graph behind the CLI commands.
type app struct {
	cfg        kaos_fields.KaosConfig
	logger     *logrus.Logger
	db         *store.DB
	store      *store.Store
	visibility *visibility.Service
}

func openApp(ctx context.Context, cfg kaos_fields.KaosConfig, logger *logrus.Logger, reg prometheus.Registerer) (*app, error) {
	db, err := store.OpenFromConfig(cfg.DatabaseURL, cfg.DatabasePath, cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.Migrate(migrateCtx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	st := store.New(db, store.WithLogger(logger), store.WithBatchSize(cfg.RecordBatchSize))

	var hc cache.HistoryCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(utils.GetRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.HistoryTTL(), logger)
		if err := rc.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, history reads go to the database")
		}
		hc = rc
	}

	logger.WithFields(logrus.Fields{
		"driver": db.Driver,
		"redis":  cfg.RedisAddr != "",
	}).Info("storage ready")
	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      st,
		visibility: visibility.NewService(st, hc, logger, cfg, reg),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// router builds the gin engine for the app.
func (a *app) router(reg prometheus.Registerer, gatherer prometheus.Gatherer) *gin.Engine {
	if !a.cfg.IsDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewService(a.store, a.visibility, a.cfg, a.logger).Router(reg, gatherer)
}

// serve runs handler on ln until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *logrus.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.WithField("addr", ln.Addr().String()).Info("kaos listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("kaos stopped")
	return nil
}
