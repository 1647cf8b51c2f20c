// router.go assembles the collector's Gin engine. The collector listens on a
// private network segment and trusts its callers (the gateway replicas), so
// there is no auth guard here; exposure control is a deployment concern.
package collector

import (
	"github.com/gin-gonic/gin"
	"github.com/medgate/medgate/internal/db/repositories"
	"github.com/medgate/medgate/internal/middleware"
)

// SetupRouter wires the collector's routes and middleware.
func SetupRouter(events *repositories.EventRepository, hub *Hub) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(gin.Recovery())

	handler := NewHandler(events, hub)

	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/logs", handler.Ingest)
		v1.GET("/logs/:principal_id", handler.GetRecent)
		v1.GET("/counters/:principal_id", handler.GetCounters)
		v1.GET("/analysis", handler.GetAnalysis)
		v1.GET("/stream/:principal_id", handler.Stream)
	}

	return router
}
