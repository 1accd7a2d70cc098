package http

import (
	"context"
	"net/http"

	"github.com/geocoder89/placehunt/internal/config"
	"github.com/geocoder89/placehunt/internal/http/handlers"
	"github.com/geocoder89/placehunt/internal/http/middlewares"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/geocoder89/placehunt/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Engine is everything the API needs from the integrity engine.
type Engine interface {
	handlers.AccountService
	handlers.PlacesService
	handlers.ExperiencesService
	handlers.UsersService
}

type Tokens interface {
	middlewares.TokenVerifier
	handlers.TokenIssuer
}

type Deps struct {
	Config  config.Config
	Engine  Engine
	Tokens  Tokens
	Limiter ratelimit.Limiter
	Prom    *observability.Prom
	// Ping backs /readyz; nil when the store has nothing to check.
	Ping func(ctx context.Context) error
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != "dev" && d.Config.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(otelgin.Middleware("placehunt-api"))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Config.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(d.Config.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := d.Limiter
	if limiter == nil && d.Config.AuthRateLimit > 0 {
		limiter = ratelimit.NewMemory(d.Config.AuthRateLimit, d.Config.AuthRateWindow)
	}

	authMW := middlewares.NewAuthMiddleware(d.Tokens)
	requireAuth := authMW.RequireAuth()

	api := r.Group("/")
	api.Use(middlewares.Timeout(d.Config.RequestTimeout))

	// Wire up handlers
	authHandler := handlers.NewAuthHandler(d.Engine, d.Tokens)
	placesHandler := handlers.NewPlacesHandler(d.Engine)
	expHandler := handlers.NewExperiencesHandler(d.Engine)
	usersHandler := handlers.NewUsersHandler(d.Engine)

	authGroup := api.Group("/auth")
	if limiter != nil {
		authGroup.Use(middlewares.RateLimit(limiter, "auth", middlewares.KeyByIP))
	}
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	api.GET("/places", placesHandler.ListPlaces)
	api.GET("/places/:id", placesHandler.GetPlace)
	api.POST("/places", requireAuth, placesHandler.CreatePlace)
	api.PUT("/places/:id", requireAuth, placesHandler.UpdatePlace)
	api.DELETE("/places/:id", requireAuth, placesHandler.DeletePlace)

	api.GET("/experiences", expHandler.ListExperiences)
	api.GET("/experiences/:id", expHandler.GetExperience)
	api.POST("/experiences", requireAuth, expHandler.CreateExperience)
	api.PUT("/experiences/:id", requireAuth, expHandler.UpdateExperience)
	api.DELETE("/experiences/:id", requireAuth, expHandler.DeleteExperience)

	api.GET("/users", requireAuth, authMW.RequireAdmin(), usersHandler.ListUsers)
	api.PUT("/users/:id/role", requireAuth, authMW.RequireAdmin(), usersHandler.SetRole)
	api.DELETE("/users/:id", requireAuth, usersHandler.DeleteUser)

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondError(ctx, http.StatusNotFound, "not_found", "Route not found", nil)
	})

	return r
}
