package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/blastline/blastline/internal/api/handler"
	"github.com/blastline/blastline/internal/api/middleware"
)

type Options struct {
	Env             string
	AuthSecret      string
	HealthHandler   *handler.HealthHandler
	AuthHandler     *handler.AuthHandler
	OutletHandler   *handler.OutletHandler
	CustomerHandler *handler.CustomerHandler
	SessionHandler  *handler.SessionHandler
	BlastHandler    *handler.BlastHandler
	RateLimit       middleware.RateLimitOption
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")

	opts.HealthHandler.Register(api)
	opts.AuthHandler.Register(api)

	protected := api.Group("")
	if opts.RateLimit.Enabled {
		protected.Use(middleware.RateLimit(opts.RateLimit))
	}
	protected.Use(middleware.Auth(opts.AuthSecret))

	opts.OutletHandler.Register(protected)
	opts.CustomerHandler.Register(protected)
	opts.SessionHandler.Register(protected)
	opts.BlastHandler.Register(protected)

	return router
}
