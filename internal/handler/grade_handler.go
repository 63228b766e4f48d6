package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/service"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// GradeHandler exposes raw-mark entry and derived grade views.
type GradeHandler struct {
	grades      *service.GradeService
	transcripts *service.TranscriptService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService, transcripts *service.TranscriptService) *GradeHandler {
	return &GradeHandler{grades: grades, transcripts: transcripts}
}

// UpsertMarks godoc
// @Summary Enter or update raw assessment marks
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.UpsertMarksRequest true "Raw marks"
// @Success 200 {object} response.Envelope
// @Router /grades [put]
func (h *GradeHandler) UpsertMarks(c *gin.Context) {
	var req service.UpsertMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	breakdown, err := h.grades.UpsertMarks(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, breakdown, nil)
}

// Detail godoc
// @Summary Derived grade breakdown for a student/course pair
// @Tags Grades
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseCode path string true "Course code"
// @Success 200 {object} response.Envelope
// @Router /grades/{studentId}/{courseCode} [get]
func (h *GradeHandler) Detail(c *gin.Context) {
	breakdown, err := h.grades.Detail(c.Request.Context(), c.Param("studentId"), c.Param("courseCode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, breakdown, nil)
}

// DeleteMarks godoc
// @Summary Delete raw marks for a student/course pair
// @Tags Grades
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseCode path string true "Course code"
// @Success 204
// @Router /grades/{studentId}/{courseCode} [delete]
func (h *GradeHandler) DeleteMarks(c *gin.Context) {
	if err := h.grades.DeleteMarks(c.Request.Context(), c.Param("studentId"), c.Param("courseCode")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CGPA godoc
// @Summary Cumulative GPA across all graded courses
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/cgpa [get]
func (h *GradeHandler) CGPA(c *gin.Context) {
	result, err := h.grades.StudentCGPA(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Transcript godoc
// @Summary Render the student transcript as PDF
// @Tags Grades
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Success 200 {file} binary
// @Router /students/{id}/transcript.pdf [get]
func (h *GradeHandler) Transcript(c *gin.Context) {
	payload, err := h.transcripts.RenderPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcript-%s.pdf", c.Param("id")))
	c.Data(http.StatusOK, "application/pdf", payload)
}
