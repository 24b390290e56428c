package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"multinet/internal/responses"
	"multinet/internal/services"
)

type GraphHandler struct {
	workspaces *services.WorkspaceService
	queries    *services.QueryService
}

func NewGraphHandler(workspaces *services.WorkspaceService, queries *services.QueryService) *GraphHandler {
	return &GraphHandler{
		workspaces: workspaces,
		queries:    queries,
	}
}

func (h *GraphHandler) ListGraphs(c *gin.Context) {
	graphs, err := h.queries.ListGraphs(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		responses.Error(c, err, "Failed to list graphs")
		return
	}
	responses.Success(c, http.StatusOK, graphs, "Graphs retrieved successfully")
}

func (h *GraphHandler) CreateGraph(c *gin.Context) {
	var req services.CreateGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	graph, err := h.workspaces.CreateGraph(c.Request.Context(), c.Param("workspace"), req)
	if err != nil {
		responses.Error(c, err, "Failed to create graph")
		return
	}
	responses.Success(c, http.StatusCreated, graph, "Graph created successfully")
}

func (h *GraphHandler) GetGraph(c *gin.Context) {
	graph, err := h.queries.GetGraph(c.Request.Context(), c.Param("workspace"), c.Param("graph"))
	if err != nil {
		responses.Error(c, err, "Failed to get graph")
		return
	}
	responses.Success(c, http.StatusOK, graph, "Graph retrieved successfully")
}

func (h *GraphHandler) DeleteGraph(c *gin.Context) {
	if err := h.workspaces.DeleteGraph(c.Request.Context(), c.Param("workspace"), c.Param("graph")); err != nil {
		responses.Error(c, err, "Failed to delete graph")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Graph deleted successfully")
}

func (h *GraphHandler) GetNodes(c *gin.Context) {
	var page services.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid paging parameters")
		return
	}

	nodes, err := h.queries.GraphNodes(c.Request.Context(), c.Param("workspace"), c.Param("graph"), page)
	if err != nil {
		responses.Error(c, err, "Failed to read nodes")
		return
	}
	responses.Success(c, http.StatusOK, nodes, "Nodes retrieved successfully")
}

func (h *GraphHandler) GetEdges(c *gin.Context) {
	var page services.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid paging parameters")
		return
	}

	edges, err := h.queries.GraphEdges(c.Request.Context(), c.Param("workspace"), c.Param("graph"), page)
	if err != nil {
		responses.Error(c, err, "Failed to read edges")
		return
	}
	responses.Success(c, http.StatusOK, edges, "Edges retrieved successfully")
}
