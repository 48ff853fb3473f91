package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/docsearch/config"
	"github.com/meghashyamc/docsearch/db/kvdb"
	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/metrics"
	"github.com/meghashyamc/docsearch/services/index"
	"github.com/meghashyamc/docsearch/services/search"
	"github.com/meghashyamc/docsearch/validation"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	cfg           *config.Config
	router        *gin.Engine
	httpServer    *http.Server
	registry      *prometheus.Registry
	kvdb          kvdb.DB
	searchdb      searchdb.DB
	searchService *search.Service
	indexService  *index.Service
	validator     *validation.Validator
	logger        logger.Logger
}

// Run serves the HTTP API until ctx is done or the process is interrupted.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	s := &server{
		cfg:      cfg,
		logger:   logger.NewWithLevel(cfg.GetLogLevel()),
		registry: newRegistry(),
	}
	// The background index builder has to stop before its metadata store closes.
	defer func() {
		cancel()
		s.closeDependencies()
	}()

	if err := s.setupDependencies(ctx); err != nil {
		return err
	}
	s.setupRouter()

	return s.serve(ctx)
}

func (s *server) setupDependencies(ctx context.Context) error {
	var err error
	s.searchdb, err = searchdb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating searchDB", "err", err.Error())
		return err
	}

	s.searchService, err = search.New(s.logger, s.searchdb, search.Options{
		DateUnit:        search.DateUnit(s.cfg.GetDateUnit()),
		DefaultPageSize: s.cfg.GetDefaultPageSize(),
		Metrics:         metrics.New(s.registry),
	})
	if err != nil {
		s.logger.Error("error creating search service", "err", err.Error())
		return err
	}

	if indexer, ok := s.searchdb.(*searchdb.BleveDB); ok {
		boltDB, err := kvdb.New(s.logger, s.cfg)
		if err != nil {
			s.logger.Error("error creating kvDB", "err", err.Error())
			return err
		}
		s.kvdb = boltDB
		s.indexService = index.New(ctx, s.logger, indexer, boltDB, index.Options{
			Workers:     s.cfg.GetIngestWorkers(),
			MaxFileSize: s.cfg.GetMaxIngestFileSize(),
		})
	}

	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		return err
	}

	return nil
}

func (s *server) setupRouter() {
	router := newRouter(s.logger)
	s.setupRoutes(router)
	s.router = router
}

func (s *server) serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.GetPort()),
		Handler:           newHandler(s.router, s.cfg.GetAllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr, "backend", s.cfg.GetBackend())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err, ok := <-listenErr:
		if ok {
			s.logger.Error("http server stopped", "err", err.Error())
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("starting to shut down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error shutting down http server", "err", err.Error())
		return err
	}
	s.logger.Info("shut down http server successfully")
	return nil
}

func (s *server) closeDependencies() {
	if s.kvdb != nil {
		if err := s.kvdb.Close(); err != nil {
			s.logger.Warn("could not close kvDB", "err", err.Error())
		}
	}
	if s.searchdb != nil {
		if err := s.searchdb.Close(); err != nil {
			s.logger.Warn("could not close searchDB", "err", err.Error())
		}
	}
}
