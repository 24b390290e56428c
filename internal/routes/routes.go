package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"multinet/internal/handlers"
)

type Handlers struct {
	Workspace *handlers.WorkspaceHandler
	Table     *handlers.TableHandler
	Graph     *handlers.GraphHandler
	Upload    *handlers.UploadHandler
	Query     *handlers.QueryHandler
	Schema    *handlers.SchemaHandler
}

func RegisterRoutes(router *gin.Engine, h Handlers) {
	api := router.Group("/api/v1")

	NewWorkspaceRoutes(h.Workspace).RegisterRoutes(api)
	NewTableRoutes(h.Table).RegisterRoutes(api)
	NewGraphRoutes(h.Graph).RegisterRoutes(api)
	NewUploadRoutes(h.Upload).RegisterRoutes(api)
	NewQueryRoutes(h.Query).RegisterRoutes(api)
	NewSchemaRoutes(h.Schema).RegisterRoutes(api)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
