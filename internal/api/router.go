// Package api wires together the gateway's HTTP routes.
//
// Route grouping:
//   - /health is unauthenticated so load balancers can probe liveness.
//   - /api/v1/ requires a valid API key; every request through it is metered
//     by the telemetry pipeline and rate-limited per principal.
//   - /internal/v1/ is the privileged provisioning surface. It is guarded by
//     trusted-network and admin-token checks instead of the API key guard,
//     and deliberately produces no telemetry events.
package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/jmoiron/sqlx"
	"github.com/medgate/medgate/internal/api/admin"
	"github.com/medgate/medgate/internal/api/clinical"
	"github.com/medgate/medgate/internal/auth"
	"github.com/medgate/medgate/internal/cache"
	"github.com/medgate/medgate/internal/config"
	"github.com/medgate/medgate/internal/db/repositories"
	"github.com/medgate/medgate/internal/emitter"
	"github.com/medgate/medgate/internal/jobs"
	"github.com/medgate/medgate/internal/middleware"
	"github.com/medgate/medgate/internal/safego"
	"github.com/redis/go-redis/v9"
)

// BackgroundServices holds the long-running pieces the gateway must stop
// during graceful shutdown. cmd/server calls Shutdown after the HTTP server
// has drained so the emitter can deliver what the last requests enqueued.
type BackgroundServices struct {
	emitter    *emitter.Emitter
	reconciler *jobs.AppointmentReconciler
}

// Shutdown stops all background goroutines.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.reconciler != nil {
		bg.reconciler.Stop()
	}
	if bg.emitter != nil {
		bg.emitter.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the gateway router along with its
// background services. It returns an error only for configuration problems
// that must stop startup (an unusable trusted CIDR, a missing admin token).
func NewRouter(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, hasher *auth.Hasher) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// Repositories
	principalRepo := repositories.NewPrincipalRepository(db)
	patientRepo := repositories.NewPatientRepository(db)
	doctorRepo := repositories.NewDoctorRepository(db)
	appointmentRepo := repositories.NewAppointmentRepository(db)

	keyCache := cache.NewRedisKeyCache(redisClient)
	em := emitter.New(cfg.Emitter, cfg.Collector.URL)

	reconciler := jobs.NewAppointmentReconciler(appointmentRepo, &cfg.Reconciler)
	safego.Go(func() {
		reconciler.Start(context.Background())
	})

	internalGuard, err := middleware.InternalAuthMiddleware(cfg.Auth.TrustedCIDRs, cfg.Auth.AdminTokenHash)
	if err != nil {
		return nil, nil, err
	}

	// Global middleware. Telemetry sits inside Recovery: it recovers a
	// handler panic, emits the event, then re-panics so Recovery still
	// answers with a 500.
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(gin.Recovery())
	router.Use(middleware.TelemetryMiddleware(em))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Authenticated domain API.
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(hasher, keyCache, principalRepo, cfg.Auth.CacheTTL))
	if cfg.Security.RateLimiting.Enabled {
		limiter := redis_rate.NewLimiter(redisClient)
		v1.Use(middleware.RateLimitMiddleware(limiter, cfg.Security.RateLimiting))
	}
	{
		patients := clinical.NewPatientHandler(patientRepo)
		v1.POST("/patients", patients.Create)
		v1.GET("/patients", patients.List)
		v1.GET("/patients/:id", patients.Get)
		v1.PUT("/patients/:id", patients.Update)
		v1.DELETE("/patients/:id", patients.Delete)

		doctors := clinical.NewDoctorHandler(doctorRepo)
		v1.POST("/doctors", doctors.Create)
		v1.GET("/doctors", doctors.List)
		v1.GET("/doctors/:id", doctors.Get)
		v1.DELETE("/doctors/:id", doctors.Delete)

		appointments := clinical.NewAppointmentHandler(appointmentRepo, patientRepo, doctorRepo)
		v1.POST("/appointments", appointments.Create)
		v1.GET("/appointments", appointments.List)
		v1.GET("/appointments/:id", appointments.Get)
		v1.PUT("/appointments/:id/status", appointments.Transition)
	}

	// Internal privileged API.
	internal := router.Group("/internal/v1")
	internal.Use(internalGuard)
	{
		principals := admin.NewHandler(principalRepo, hasher, keyCache, cfg.Auth.KeyPrefix)
		internal.POST("/principals", principals.CreatePrincipal)
		internal.GET("/principals/:id", principals.GetPrincipal)
		internal.PUT("/principals/:id/credential", principals.RotateCredential)
		internal.DELETE("/principals/:id", principals.DeletePrincipal)
	}

	bg := &BackgroundServices{
		emitter:    em,
		reconciler: reconciler,
	}
	return router, bg, nil
}
