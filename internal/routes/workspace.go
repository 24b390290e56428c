package routes

import (
	"github.com/gin-gonic/gin"

	"multinet/internal/handlers"
	"multinet/internal/middlewares"
)

type WorkspaceRoutes struct {
	handler *handlers.WorkspaceHandler
}

func NewWorkspaceRoutes(handler *handlers.WorkspaceHandler) *WorkspaceRoutes {
	return &WorkspaceRoutes{handler: handler}
}

func (r *WorkspaceRoutes) RegisterRoutes(router *gin.RouterGroup) {
	workspaces := router.Group("/workspaces")
	workspaces.Use(middlewares.Authenticate)
	{
		workspaces.GET("", r.handler.ListWorkspaces)
		workspaces.POST("", r.handler.CreateWorkspace)
		workspaces.GET("/:workspace", r.handler.GetWorkspace)
		workspaces.PATCH("/:workspace", r.handler.RenameWorkspace)
		workspaces.DELETE("/:workspace", r.handler.DeleteWorkspace)
	}
}
