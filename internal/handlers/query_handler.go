package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"multinet/internal/middlewares"
	"multinet/internal/responses"
	"multinet/internal/services"
)

type QueryHandler struct {
	queryService *services.QueryService
}

func NewQueryHandler(queryService *services.QueryService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
	}
}

// ExecuteQuery runs a read-only Cypher query inside the workspace namespace.
func (h *QueryHandler) ExecuteQuery(c *gin.Context) {
	var req services.ExecuteQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body: query is required")
		return
	}

	result, err := h.queryService.ExecuteQuery(c.Request.Context(), c.Param("workspace"), middlewares.Principal(c), &req)
	if err != nil {
		responses.Error(c, err, "Failed to execute query")
		return
	}

	responses.Success(c, http.StatusOK, result, "Query executed successfully")
}

func (h *QueryHandler) GetQueryHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	history, err := h.queryService.GetQueryHistory(c.Request.Context(), c.Param("workspace"), limit)
	if err != nil {
		responses.Error(c, err, "Failed to get query history")
		return
	}
	responses.Success(c, http.StatusOK, history, "Query history retrieved successfully")
}
