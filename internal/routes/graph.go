package routes

import (
	"github.com/gin-gonic/gin"

	"multinet/internal/handlers"
	"multinet/internal/middlewares"
)

type GraphRoutes struct {
	handler *handlers.GraphHandler
}

func NewGraphRoutes(handler *handlers.GraphHandler) *GraphRoutes {
	return &GraphRoutes{handler: handler}
}

func (r *GraphRoutes) RegisterRoutes(router *gin.RouterGroup) {
	graphs := router.Group("/workspaces/:workspace/graphs")
	graphs.Use(middlewares.Authenticate)
	{
		graphs.GET("", r.handler.ListGraphs)
		graphs.POST("", r.handler.CreateGraph)
		graphs.GET("/:graph", r.handler.GetGraph)
		graphs.DELETE("/:graph", r.handler.DeleteGraph)
		graphs.GET("/:graph/nodes", r.handler.GetNodes)
		graphs.GET("/:graph/edges", r.handler.GetEdges)
	}
}
