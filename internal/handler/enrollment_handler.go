package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/service"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// EnrollmentHandler exposes enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseCode query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseCode = c.Query("courseCode")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Request godoc
// @Summary Request enrollment into a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.RequestEnrollmentRequest true "Enrollment request"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Request(c *gin.Context) {
	var req service.RequestEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Request(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// SetStatus godoc
// @Summary Approve, reject, complete, drop or withdraw an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseCode path string true "Course code"
// @Param payload body service.SetEnrollmentStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{studentId}/{courseCode}/status [put]
func (h *EnrollmentHandler) SetStatus(c *gin.Context) {
	var req service.SetEnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	status := models.EnrollmentStatus(strings.ToUpper(string(req.Status)))
	result, err := h.enrollments.SetStatus(c.Request.Context(), c.Param("studentId"), c.Param("courseCode"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if result.Warning != "" {
		meta = map[string]interface{}{"warning": result.Warning}
	}
	response.JSON(c, http.StatusOK, result.Enrollment, nil, meta)
}

// Delete godoc
// @Summary Delete every enrollment record for a student/course pair
// @Tags Enrollments
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseCode path string true "Course code"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{studentId}/{courseCode} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	result, err := h.enrollments.Delete(c.Request.Context(), c.Param("studentId"), c.Param("courseCode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Warning != "" {
		response.JSON(c, http.StatusOK, gin.H{"deleted": true}, nil, map[string]interface{}{"warning": result.Warning})
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": true}, nil)
}
