// Package server exposes the conversion pipeline and the screen store
// over an HTTP API, including the endpoint devices poll for their next
// screen.
package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/rmitchellscott/epdkit/internal/config"
	"github.com/rmitchellscott/epdkit/internal/middleware"
	"github.com/rmitchellscott/epdkit/internal/store"
)

// Server wires the HTTP handlers to the database services.
type Server struct {
	devices *store.DeviceService
	screens *store.ScreenService
}

// New builds the API router on top of an initialized database.
func New(db *gorm.DB) *gin.Engine {
	s := &Server{
		devices: store.NewDeviceService(db),
		screens: store.NewScreenService(db),
	}

	if mode := config.Get("GIN_MODE", ""); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// CORS for browser-based panel simulators and dashboards.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-API-Key",
		"Access-Token",
	}
	router.Use(cors.New(corsConfig))

	limiter := middleware.NewPerIPRateLimiter(
		config.GetInt("RATE_LIMIT_PER_MINUTE", 60),
		config.GetInt("RATE_LIMIT_BURST", 10),
	)
	maxUpload := int64(config.GetInt("MAX_UPLOAD_KB", 16*1024)) * 1024

	router.GET("/api/healthz", s.healthHandler)
	router.GET("/api/version", s.versionHandler)
	router.GET("/api/profiles", s.profilesHandler)
	router.GET("/api/profiles/:name", s.profileHandler)

	// Stateless conversion, open but rate limited.
	router.POST("/api/convert",
		limiter.RateLimit(), middleware.RequestSizeLimit(maxUpload), s.convertHandler)

	// Device polling, authenticated by the device's own token.
	router.GET("/api/display", s.displayHandler)

	protected := router.Group("/api", middleware.RequireAPIKey())
	protected.POST("/screens",
		limiter.RateLimit(), middleware.RequestSizeLimit(maxUpload), s.createScreenHandler)
	protected.GET("/screens", s.listScreensHandler)
	protected.GET("/screens/:id", s.getScreenHandler)
	protected.GET("/screens/:id/data", s.screenDataHandler)
	protected.DELETE("/screens/:id", s.deleteScreenHandler)

	protected.POST("/devices", s.createDeviceHandler)
	protected.GET("/devices", s.listDevicesHandler)
	protected.GET("/devices/:id", s.getDeviceHandler)
	protected.DELETE("/devices/:id", s.deleteDeviceHandler)
	protected.POST("/devices/:id/screen", s.assignScreenHandler)

	protected.GET("/conversions", s.listConversionsHandler)
	protected.GET("/stats", s.statsHandler)

	return router
}
