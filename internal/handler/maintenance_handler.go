package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/service"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// MaintenanceHandler exposes operational endpoints.
type MaintenanceHandler struct {
	reconciliation *service.ReconciliationService
}

// NewMaintenanceHandler constructs MaintenanceHandler.
func NewMaintenanceHandler(reconciliation *service.ReconciliationService) *MaintenanceHandler {
	return &MaintenanceHandler{reconciliation: reconciliation}
}

// ReconcileEnrollments godoc
// @Summary Collapse duplicate enrollment records
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/enrollments/reconcile [post]
func (h *MaintenanceHandler) ReconcileEnrollments(c *gin.Context) {
	result, err := h.reconciliation.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
