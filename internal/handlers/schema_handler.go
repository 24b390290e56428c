package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"multinet/internal/responses"
	"multinet/internal/services"
)

type SchemaHandler struct {
	schemaService *services.SchemaService
}

func NewSchemaHandler(schemaService *services.SchemaService) *SchemaHandler {
	return &SchemaHandler{
		schemaService: schemaService,
	}
}

// VisualizeSchema handles GET /api/v1/workspaces/:workspace/schema/visualize
func (h *SchemaHandler) VisualizeSchema(c *gin.Context) {
	workspace := c.Param("workspace")

	mermaidDiagram, err := h.schemaService.VisualizeWorkspace(c.Request.Context(), workspace)
	if err != nil {
		responses.Error(c, err, "Failed to visualize schema")
		return
	}

	responses.Success(c, http.StatusOK, gin.H{
		"mermaid":   mermaidDiagram,
		"workspace": workspace,
	}, "Schema visualization generated successfully")
}
