package http

import (
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appconfig "github.com/micrelay/micrelay/internal/config"
	"github.com/micrelay/micrelay/internal/storage"
	"github.com/micrelay/micrelay/internal/ws"
	"github.com/micrelay/micrelay/webassets"
)

// NewRouter executes the newRouter function.
func NewRouter(cfg appconfig.Config, wsHandler *ws.Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/client-ws", func(c *gin.Context) {
		wsHandler.Handle(c.Writer, c.Request)
	})

	router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": wsHandler.Registry().Snapshot()})
	})

	reports := router.Group("/reports")
	reports.GET("", func(c *gin.Context) {
		profileUID := reportProfile(c, cfg)
		c.JSON(http.StatusOK, gin.H{
			"profile_uid": profileUID,
			"reports":     storage.ListReports(cfg.ReportsDir, profileUID),
		})
	})
	reports.GET("/:uid", func(c *gin.Context) {
		report, err := storage.GetReport(cfg.ReportsDir, reportProfile(c, cfg), c.Param("uid"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})
	reports.DELETE("/:uid", func(c *gin.Context) {
		deleted := storage.DeleteReport(cfg.ReportsDir, reportProfile(c, cfg), c.Param("uid"))
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"deleted": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	if !mountEmbeddedDemo(router, logger) {
		router.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.FrontendDir, "index.html"))
		})
		router.StaticFile("/recorder.js", filepath.Join(cfg.FrontendDir, "recorder.js"))
	}

	return router
}

func reportProfile(c *gin.Context, cfg appconfig.Config) string {
	if profile := c.Query("profile"); profile != "" {
		return profile
	}
	return cfg.ProfileConfig.ProfileUID
}

func mountEmbeddedDemo(router *gin.Engine, logger *zap.Logger) bool {
	embeddedRoot, err := webassets.Subdir("demo")
	if err != nil {
		if logger != nil {
			logger.Warn("failed to load embedded demo assets; falling back to disk", zap.Error(err))
		}
		return false
	}

	indexHTML, err := fs.ReadFile(embeddedRoot, "index.html")
	if err != nil {
		if logger != nil {
			logger.Warn("missing embedded index.html; falling back to disk", zap.Error(err))
		}
		return false
	}

	if logger != nil {
		logger.Info("serving embedded demo assets", zap.String("source", "webassets/demo"))
	}

	rootFS := http.FS(embeddedRoot)
	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	router.StaticFileFS("/recorder.js", "recorder.js", rootFS)

	return true
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		if logger == nil {
			return
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", latency),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}
