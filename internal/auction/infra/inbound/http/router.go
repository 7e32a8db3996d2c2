package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterOpsRoutes registra las rutas operativas del servicio.
func RegisterOpsRoutes(r *gin.Engine, handler *HealthHandler) {
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
