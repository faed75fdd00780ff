package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/sharedrop/config"
	"github.com/cppla/sharedrop/controllers"
	"github.com/cppla/sharedrop/middleware"
	"github.com/cppla/sharedrop/share"
	"github.com/cppla/sharedrop/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, svc *share.Service, gatherer prometheus.Gatherer) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file; without one it shares the app logger
	accessLog := utils.Logger
	if cfg.GinPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			accessLog = gl
		} else {
			utils.Sugar.Warnf("gin log file unavailable, using application log: %v", err)
		}
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.AdminSecretHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		})))
	}

	shareController := controllers.NewShareController(svc, utils.Logger)
	socketController := controllers.NewSocketController(svc, utils.Logger, cfg.AllowedOrigins, cfg.ShareOutboxSize)
	statsController := controllers.NewStatsController(svc)
	configController := controllers.NewConfigController(cfg)

	api := r.Group("/api/v1")

	shareGroup := api.Group("/share")
	limited := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute)
	shareGroup.POST("/session", limited, shareController.CreateSession)
	shareGroup.GET("/session", limited, shareController.CreateSession)
	shareGroup.POST("/upload-credentials", limited, shareController.UploadCredentials)
	shareGroup.GET("/rooms/:sessionId", shareController.GetRoom)
	shareGroup.POST("/rooms/:sessionId/files", limited, shareController.AnnounceFile)
	shareGroup.GET("/config", configController.GetShareConfig)
	shareGroup.GET("/ws", socketController.Serve)

	admin := api.Group("/admin/share")
	admin.Use(middleware.AdminSecretRequired(cfg.AdminSecretHash))
	admin.GET("/stats", statsController.GetStats)
	admin.DELETE("/rooms/:sessionId/files/*publicId", statsController.RemoveFile)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
