package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"multinet/internal/ingest"
	"multinet/internal/middlewares"
	"multinet/internal/models"
	"multinet/internal/responses"
	"multinet/internal/services"
)

type UploadHandler struct {
	uploadService *services.UploadService
}

func NewUploadHandler(uploadService *services.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
	}
}

// createUploadRequest references bytes already in the blob store.
type createUploadRequest struct {
	BlobRef     string                       `json:"blob_ref" binding:"required"`
	Format      string                       `json:"format" binding:"required"`
	Target      string                       `json:"target" binding:"required"`
	Kind        string                       `json:"kind"`
	NodeTable   string                       `json:"node_table"`
	ColumnTypes map[string]models.ColumnType `json:"column_types"`
	Delimiter   string                       `json:"delimiter"`
	Overwrite   bool                         `json:"overwrite"`
}

// uploadForm is the multipart variant; the bytes come in the "file" part and
// column_types is a JSON object in a form field.
type uploadForm struct {
	Format      string `form:"format" binding:"required"`
	Target      string `form:"target" binding:"required"`
	Kind        string `form:"kind"`
	NodeTable   string `form:"node_table"`
	ColumnTypes string `form:"column_types"`
	Delimiter   string `form:"delimiter"`
	Overwrite   bool   `form:"overwrite"`
}

// CreateUpload queues an upload. It accepts either a JSON body naming a blob
// reference or a multipart form carrying the file.
func (h *UploadHandler) CreateUpload(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.createFromFile(c)
		return
	}

	var req createUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	upload, err := h.uploadService.Submit(c.Request.Context(), services.SubmitUploadRequest{
		Workspace: c.Param("workspace"),
		Principal: middlewares.Principal(c),
		BlobRef:   req.BlobRef,
		Request: ingest.Request{
			Format:      ingest.Format(req.Format),
			Target:      req.Target,
			Kind:        models.TableKind(req.Kind),
			NodeTable:   req.NodeTable,
			ColumnTypes: req.ColumnTypes,
			Delimiter:   req.Delimiter,
			Overwrite:   req.Overwrite,
		},
	})
	if err != nil {
		responses.Error(c, err, "Failed to queue upload")
		return
	}
	responses.Success(c, http.StatusAccepted, upload, "Upload queued")
}

func (h *UploadHandler) createFromFile(c *gin.Context) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid form")
		return
	}
	var columnTypes map[string]models.ColumnType
	if form.ColumnTypes != "" {
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(form.ColumnTypes, &columnTypes); err != nil {
			responses.Fail(c, http.StatusBadRequest, err, "column_types must be a JSON object")
			return
		}
	}

	fh, err := c.FormFile("file")
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "A file part is required")
		return
	}
	file, err := fh.Open()
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Unreadable file part")
		return
	}
	defer file.Close()

	upload, err := h.uploadService.SubmitFile(c.Request.Context(), services.SubmitUploadRequest{
		Workspace: c.Param("workspace"),
		Principal: middlewares.Principal(c),
		Request: ingest.Request{
			Format:      ingest.Format(form.Format),
			Target:      form.Target,
			Kind:        models.TableKind(form.Kind),
			NodeTable:   form.NodeTable,
			ColumnTypes: columnTypes,
			Delimiter:   form.Delimiter,
			Overwrite:   form.Overwrite,
		},
	}, fh.Filename, file, fh.Size)
	if err != nil {
		responses.Error(c, err, "Failed to queue upload")
		return
	}
	responses.Success(c, http.StatusAccepted, upload, "Upload queued")
}

func (h *UploadHandler) ListUploads(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	uploads, err := h.uploadService.List(c.Request.Context(), c.Param("workspace"), limit)
	if err != nil {
		responses.Error(c, err, "Failed to list uploads")
		return
	}
	responses.Success(c, http.StatusOK, uploads, "Uploads retrieved successfully")
}

func (h *UploadHandler) GetUpload(c *gin.Context) {
	id, ok := uploadID(c)
	if !ok {
		return
	}

	upload, err := h.uploadService.Get(c.Request.Context(), c.Param("workspace"), id)
	if err != nil {
		responses.Error(c, err, "Failed to get upload")
		return
	}
	responses.Success(c, http.StatusOK, upload, "Upload retrieved successfully")
}

func (h *UploadHandler) CancelUpload(c *gin.Context) {
	id, ok := uploadID(c)
	if !ok {
		return
	}

	upload, err := h.uploadService.Cancel(c.Request.Context(), c.Param("workspace"), id)
	if err != nil {
		responses.Error(c, err, "Failed to cancel upload")
		return
	}
	responses.Success(c, http.StatusAccepted, upload, "Upload cancellation requested")
}

func uploadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid upload ID format")
		return uuid.Nil, false
	}
	return id, true
}
