package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Router is the device-local control surface: health probes, metrics, the
// scheduler entry points, and the overdue work list.
type Router struct {
	engine *gin.Engine
	log    *logger.Logger
}

func NewRouter(log *logger.Logger, handlers ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{engine: engine, log: log.WithComponent("http")}

	engine.Use(gin.Recovery())
	engine.Use(r.requestLogger())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	for _, h := range handlers {
		h.RegisterRoutes(v1)
	}
	return r
}

func (r *Router) Engine() *gin.Engine { return r.engine }

func (r *Router) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}
