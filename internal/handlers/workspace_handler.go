package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"multinet/internal/responses"
	"multinet/internal/services"
)

type WorkspaceHandler struct {
	workspaces *services.WorkspaceService
	queries    *services.QueryService
}

func NewWorkspaceHandler(workspaces *services.WorkspaceService, queries *services.QueryService) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaces: workspaces,
		queries:    queries,
	}
}

func (h *WorkspaceHandler) ListWorkspaces(c *gin.Context) {
	workspaces, err := h.queries.ListWorkspaces(c.Request.Context())
	if err != nil {
		responses.Error(c, err, "Failed to list workspaces")
		return
	}
	responses.Success(c, http.StatusOK, workspaces, "Workspaces retrieved successfully")
}

func (h *WorkspaceHandler) CreateWorkspace(c *gin.Context) {
	var req services.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	workspace, err := h.workspaces.CreateWorkspace(c.Request.Context(), req)
	if err != nil {
		responses.Error(c, err, "Failed to create workspace")
		return
	}
	responses.Success(c, http.StatusCreated, workspace, "Workspace created successfully")
}

func (h *WorkspaceHandler) GetWorkspace(c *gin.Context) {
	detail, err := h.queries.GetWorkspace(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		responses.Error(c, err, "Failed to get workspace")
		return
	}
	responses.Success(c, http.StatusOK, detail, "Workspace retrieved successfully")
}

func (h *WorkspaceHandler) RenameWorkspace(c *gin.Context) {
	var req services.RenameWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	workspace, err := h.workspaces.RenameWorkspace(c.Request.Context(), c.Param("workspace"), req)
	if err != nil {
		responses.Error(c, err, "Failed to rename workspace")
		return
	}
	responses.Success(c, http.StatusOK, workspace, "Workspace renamed successfully")
}

func (h *WorkspaceHandler) DeleteWorkspace(c *gin.Context) {
	if err := h.workspaces.DeleteWorkspace(c.Request.Context(), c.Param("workspace")); err != nil {
		responses.Error(c, err, "Failed to delete workspace")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Workspace deleted successfully")
}
