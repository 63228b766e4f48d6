package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/service"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// ExportHandler exposes background transcript export endpoints.
type ExportHandler struct {
	exports *service.ExportJobService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportJobService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Create godoc
// @Summary Queue a transcript roster export
// @Tags Exports
// @Accept json
// @Produce json
// @Param request body service.CreateExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Router /exports/transcripts [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req service.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request"))
		return
	}
	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	status, err := h.exports.CreateJob(c.Request.Context(), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, status, nil)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	status, err := h.exports.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished export by signed token
// @Tags Exports
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	contentType := "text/csv"
	if download.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", download.Filename))
	c.Header("Content-Type", contentType)
	http.ServeContent(c.Writer, c.Request, download.Filename, time.Time{}, download.File)
}
