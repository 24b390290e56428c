package routes

import (
	"github.com/gin-gonic/gin"

	"multinet/internal/handlers"
	"multinet/internal/middlewares"
)

type QueryRoutes struct {
	handler *handlers.QueryHandler
}

func NewQueryRoutes(handler *handlers.QueryHandler) *QueryRoutes {
	return &QueryRoutes{handler: handler}
}

func (r *QueryRoutes) RegisterRoutes(router *gin.RouterGroup) {
	query := router.Group("/workspaces/:workspace/query")
	query.Use(middlewares.Authenticate)
	{
		query.POST("/execute", r.handler.ExecuteQuery)
		query.GET("/history", r.handler.GetQueryHistory)
	}
}
