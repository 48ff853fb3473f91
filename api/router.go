package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/klauspost/compress/gzhttp"
	"github.com/meghashyamc/docsearch/api/handlers"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func (s *server) setupRoutes(router *gin.Engine) {
	router.GET("/health", health())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))

	handlers.SetupSearch(router, s.logger, s.searchService, s.validator)
	// Ingestion only exists for the embedded index.
	if s.indexService != nil {
		handlers.SetupIndex(router, s.logger, s.indexService, s.validator)
	}
}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter(logger logger.Logger) *gin.Engine {
	// Cursors carry backend sort values that must come back exactly as they were sent.
	binding.EnableDecoderUseNumber = true

	router := gin.New()
	router.UseRawPath = true
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(logger))

	return router
}

// newHandler wraps the router with response compression and CORS.
func newHandler(router http.Handler, allowedOrigins []string) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{HeaderRequestID},
	})

	return corsHandler.Handler(gzhttp.GzipHandler(router))
}

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}
