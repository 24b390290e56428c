package routes

import (
	"github.com/gin-gonic/gin"

	"multinet/internal/handlers"
	"multinet/internal/middlewares"
)

type UploadRoutes struct {
	handler *handlers.UploadHandler
}

func NewUploadRoutes(handler *handlers.UploadHandler) *UploadRoutes {
	return &UploadRoutes{handler: handler}
}

func (r *UploadRoutes) RegisterRoutes(router *gin.RouterGroup) {
	uploads := router.Group("/workspaces/:workspace/uploads")
	uploads.Use(middlewares.Authenticate)
	{
		uploads.POST("", r.handler.CreateUpload)
		uploads.GET("", r.handler.ListUploads)
		uploads.GET("/:id", r.handler.GetUpload)
		uploads.POST("/:id/cancel", r.handler.CancelUpload)
	}
}
