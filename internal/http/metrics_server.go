package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	cryptoUsecase "github.com/allisson/fieldcrypt/internal/crypto/usecase"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	"github.com/allisson/fieldcrypt/internal/httputil"
	"github.com/allisson/fieldcrypt/internal/metrics"
)

// OpsServer is the HTTP server for operations endpoints: Prometheus metrics,
// health checks, engine counters, and key lifecycle management. It is meant
// to be bound to an internal interface, not exposed publicly.
type OpsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewOpsServer creates a new OpsServer.
func NewOpsServer(
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
	encryptor cryptoUsecase.FieldEncryptor,
) *OpsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), "fieldcrypt"))
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	if encryptor != nil {
		router.GET("/v1/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, encryptor.Stats())
		})

		router.POST("/v1/keys/rotate", func(c *gin.Context) {
			version, err := encryptor.Rotate(c.Request.Context())
			if err != nil {
				httputil.HandleErrorGin(c, err, logger)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"version": version})
		})

		router.POST("/v1/keys/:version/revoke", func(c *gin.Context) {
			version, err := strconv.ParseUint(c.Param("version"), 10, 0)
			if err != nil || version == 0 {
				httputil.HandleBadRequestGin(c, fmt.Errorf("invalid key version %q", c.Param("version")), logger)
				return
			}
			if err := encryptor.Revoke(c.Request.Context(), uint(version)); err != nil {
				httputil.HandleErrorGin(c, err, logger)
				return
			}
			c.JSON(http.StatusOK, gin.H{"version": version, "status": "revoked"})
		})
	}

	return &OpsServer{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *OpsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start starts the operations HTTP server.
func (s *OpsServer) Start(ctx context.Context) error {
	s.logger.Info("starting ops server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return apperrors.Wrapf(apperrors.ErrUnavailable, "failed to start ops server: %v", err)
	}

	return nil
}

// Shutdown gracefully shuts down the operations HTTP server.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops server")
	return s.server.Shutdown(ctx)
}
