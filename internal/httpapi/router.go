// Package httpapi wires every domain service into one gin.Engine,
// mirroring the teacher's cmd/api router-assembly function: one
// handler struct per resource group, each owning its slice of routes.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sharedmem/controller/docs"
	"github.com/sharedmem/controller/internal/cluster"
	"github.com/sharedmem/controller/internal/inferrouter"
	"github.com/sharedmem/controller/internal/memorypool"
	"github.com/sharedmem/controller/internal/metrics"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/internal/wsgateway"
	"github.com/sharedmem/controller/pkg/xlog"
)

// Dependencies bundles every service the HTTP layer needs so NewRouter
// takes one argument instead of eight, matching the teacher's
// cmd-level dependency struct pattern.
type Dependencies struct {
	Registry     *registry.Registry
	Orchestrator *cluster.Orchestrator
	Aggregator   *memorypool.Aggregator
	Router       *inferrouter.Router
	Gateway      *wsgateway.Gateway
	Log          *xlog.Logger
}

// NewRouter assembles the gin.Engine serving every endpoint in spec §6.
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(deps.Log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", func(c *gin.Context) { deps.Gateway.ServeHTTP(c.Writer, c.Request) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	NewDeviceHandler(deps.Registry, deps.Log).RegisterRoutes(r)
	NewRoleHandler(deps.Registry, deps.Log).RegisterRoutes(r)
	NewSettingsHandler(deps.Registry, deps.Log).RegisterRoutes(r)
	NewGPUHandler(deps.Aggregator, deps.Registry, deps.Log).RegisterRoutes(r)
	NewBackendsHandler(deps.Registry, deps.Router, deps.Log).RegisterRoutes(r)
	NewClusterHandler(deps.Orchestrator, deps.Log).RegisterRoutes(r)
	NewChatHandler(deps.Router).RegisterRoutes(r)

	return r
}

// requestLogger mirrors the teacher's gin middleware shape: one
// structured line per request through the shared xlog sugar logger
// instead of gin's default writer.
func requestLogger(log *xlog.Logger) gin.HandlerFunc {
	named := log.Named("http")
	return func(c *gin.Context) {
		c.Next()
		named.Infof("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}
