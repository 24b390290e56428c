package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"multinet/internal/ingest"
	"multinet/internal/models"
	"multinet/internal/responses"
	"multinet/internal/services"
)

type TableHandler struct {
	workspaces *services.WorkspaceService
	queries    *services.QueryService
}

func NewTableHandler(workspaces *services.WorkspaceService, queries *services.QueryService) *TableHandler {
	return &TableHandler{
		workspaces: workspaces,
		queries:    queries,
	}
}

// writeTableQuery is the query string of PUT .../tables/:table. The body is
// the rows themselves.
type writeTableQuery struct {
	Format    string `form:"format"`
	Kind      string `form:"kind"`
	NodeTable string `form:"node_table"`
	Delimiter string `form:"delimiter"`
	Overwrite bool   `form:"overwrite"`
}

func (h *TableHandler) ListTables(c *gin.Context) {
	kind := models.TableKind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		responses.Fail(c, http.StatusBadRequest, nil, "Invalid table kind")
		return
	}

	tables, err := h.queries.ListTables(c.Request.Context(), c.Param("workspace"), kind)
	if err != nil {
		responses.Error(c, err, "Failed to list tables")
		return
	}
	responses.Success(c, http.StatusOK, tables, "Tables retrieved successfully")
}

func (h *TableHandler) GetTable(c *gin.Context) {
	table, err := h.queries.GetTable(c.Request.Context(), c.Param("workspace"), c.Param("table"))
	if err != nil {
		responses.Error(c, err, "Failed to get table")
		return
	}
	responses.Success(c, http.StatusOK, table, "Table retrieved successfully")
}

func (h *TableHandler) GetTableRows(c *gin.Context) {
	var page services.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid paging parameters")
		return
	}

	rows, err := h.queries.TableRows(c.Request.Context(), c.Param("workspace"), c.Param("table"), page)
	if err != nil {
		responses.Error(c, err, "Failed to read table rows")
		return
	}
	responses.Success(c, http.StatusOK, rows, "Rows retrieved successfully")
}

func (h *TableHandler) WriteTable(c *gin.Context) {
	var q writeTableQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid query parameters")
		return
	}

	req := ingest.Request{
		Format:    ingest.Format(q.Format),
		Target:    c.Param("table"),
		Kind:      models.TableKind(q.Kind),
		NodeTable: q.NodeTable,
		Delimiter: q.Delimiter,
		Overwrite: q.Overwrite,
	}
	result, err := h.workspaces.WriteTable(c.Request.Context(), c.Param("workspace"), req, c.Request.Body)
	if err != nil {
		responses.Error(c, err, "Failed to write table")
		return
	}
	responses.Success(c, http.StatusOK, result, "Table written successfully")
}

func (h *TableHandler) DeleteTable(c *gin.Context) {
	if err := h.workspaces.DeleteTable(c.Request.Context(), c.Param("workspace"), c.Param("table")); err != nil {
		responses.Error(c, err, "Failed to delete table")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Table deleted successfully")
}

func (h *TableHandler) AppendRows(c *gin.Context) {
	var req services.AppendRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.workspaces.AppendRows(c.Request.Context(), c.Param("workspace"), c.Param("table"), req)
	if err != nil {
		responses.Error(c, err, "Failed to append rows")
		return
	}
	responses.Success(c, http.StatusOK, result, "Rows appended successfully")
}

func (h *TableHandler) DeleteRows(c *gin.Context) {
	var req services.DeleteRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.workspaces.DeleteRows(c.Request.Context(), c.Param("workspace"), c.Param("table"), req)
	if err != nil {
		responses.Error(c, err, "Failed to delete rows")
		return
	}
	responses.Success(c, http.StatusOK, result, "Rows deleted successfully")
}
