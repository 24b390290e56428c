package routes

import (
	"github.com/gin-gonic/gin"

	"multinet/internal/handlers"
	"multinet/internal/middlewares"
)

type TableRoutes struct {
	tableHandler *handlers.TableHandler
}

func NewTableRoutes(tableHandler *handlers.TableHandler) *TableRoutes {
	return &TableRoutes{
		tableHandler: tableHandler,
	}
}

func (r *TableRoutes) RegisterRoutes(router *gin.RouterGroup) {
	tables := router.Group("/workspaces/:workspace/tables")
	tables.Use(middlewares.Authenticate)
	{
		tables.GET("", r.tableHandler.ListTables)
		tables.GET("/:table", r.tableHandler.GetTable)
		tables.GET("/:table/rows", r.tableHandler.GetTableRows)
		// POST upserts rows by key, DELETE removes them
		tables.POST("/:table/rows", r.tableHandler.AppendRows)
		tables.DELETE("/:table/rows", r.tableHandler.DeleteRows)
		// PUT creates, or replaces with ?overwrite=true
		tables.PUT("/:table", r.tableHandler.WriteTable)
		tables.DELETE("/:table", r.tableHandler.DeleteTable)
	}
}
