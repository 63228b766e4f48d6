package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

// Envelope is the wire contract every endpoint responds with. Exactly one of
// Data or Error is set; Pagination and Meta accompany list responses.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func write(c *gin.Context, status int, envelope Envelope) {
	// Academic records are personal data; keep them out of shared caches.
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, envelope)
}

// JSON sends a success envelope with optional pagination and meta.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 {
		envelope.Meta = meta[0]
	}
	write(c, status, envelope)
}

// Created sends a 201 envelope.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Envelope{Data: data})
}

// NoContent sends a bare 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error normalizes err into the envelope's error shape and picks the HTTP
// status from it.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	write(c, appErr.Status, Envelope{Error: appErr})
}
