package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"multinet/internal/apperrors"
	"multinet/internal/models"
)

type APIResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Type    string         `json:"type,omitempty"`
	Issues  []models.Issue `json:"issues,omitempty"`
}

func Success(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func Fail(c *gin.Context, statusCode int, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// Error writes err with the status its type maps to. Store errors hide
// their cause from the client.
func Error(c *gin.Context, err error, message string) {
	errType := apperrors.TypeOf(err)
	resp := APIResponse{
		Status:  "error",
		Message: message,
		Type:    string(errType),
		Issues:  apperrors.IssuesOf(err),
	}
	switch errType {
	case "", apperrors.ErrorTypeStore:
		_ = c.Error(err)
		resp.Error = http.StatusText(http.StatusInternalServerError)
	default:
		resp.Error = err.Error()
	}
	c.JSON(apperrors.HTTPStatus(err), resp)
}
