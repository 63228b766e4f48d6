package handler

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// CourseHandler exposes course read endpoints.
type CourseHandler struct {
	courses *repository.CourseRepository
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *repository.CourseRepository) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param search query string false "Search by code or title"
// @Param department query string false "Filter by department code"
// @Param semester query int false "Filter by semester"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.Search = c.Query("search")
	filter.DepartmentCode = c.Query("department")
	if semester, err := strconv.Atoi(c.Query("semester")); err == nil {
		filter.Semester = semester
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, total, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses"))
		return
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	response.JSON(c, http.StatusOK, courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total})
}

// Get godoc
// @Summary Course detail
// @Tags Courses
// @Produce json
// @Param code path string true "Course code"
// @Success 200 {object} response.Envelope
// @Router /courses/{code} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		if err == sql.ErrNoRows {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "course not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course"))
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
