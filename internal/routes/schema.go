package routes

import (
	"github.com/gin-gonic/gin"

	"multinet/internal/handlers"
	"multinet/internal/middlewares"
)

type SchemaRoutes struct {
	handler *handlers.SchemaHandler
}

func NewSchemaRoutes(handler *handlers.SchemaHandler) *SchemaRoutes {
	return &SchemaRoutes{handler: handler}
}

func (r *SchemaRoutes) RegisterRoutes(router *gin.RouterGroup) {
	schema := router.Group("/workspaces/:workspace/schema")
	schema.Use(middlewares.Authenticate)
	{
		schema.GET("/visualize", r.handler.VisualizeSchema)
	}
}
