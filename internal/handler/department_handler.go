package handler

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// DepartmentHandler exposes department read endpoints.
type DepartmentHandler struct {
	departments *repository.DepartmentRepository
}

// NewDepartmentHandler constructs DepartmentHandler.
func NewDepartmentHandler(departments *repository.DepartmentRepository) *DepartmentHandler {
	return &DepartmentHandler{departments: departments}
}

// List godoc
// @Summary List departments
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DepartmentHandler) List(c *gin.Context) {
	departments, err := h.departments.List(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments"))
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// Get godoc
// @Summary Department detail
// @Tags Departments
// @Produce json
// @Param code path string true "Department code"
// @Success 200 {object} response.Envelope
// @Router /departments/{code} [get]
func (h *DepartmentHandler) Get(c *gin.Context) {
	department, err := h.departments.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		if err == sql.ErrNoRows {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "department not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department"))
		return
	}
	response.JSON(c, http.StatusOK, department, nil)
}
