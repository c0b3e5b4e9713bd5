package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
)

type createCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceAmount int64  `json:"price_amount"`
	Currency    string `json:"currency"`
	IsPublished bool   `json:"is_published"`
}

type updateCourseRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	PriceAmount *int64  `json:"price_amount"`
	IsPublished *bool   `json:"is_published"`
}

type createModuleRequest struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type createLessonRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	VideoURL  string `json:"video_url"`
	Position  int    `json:"position"`
	IsPreview bool   `json:"is_preview"`
}

type createResourceRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Kind  string `json:"kind"`
}

type createRecordingRequest struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	RecordedAt string `json:"recorded_at"`
}

func (s *Server) ListCourses(c *gin.Context) {
	limit, offset, err := parseLimitOffset(c.Query("limit"), c.Query("offset"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.catalogSvc.ListCourses(c.Request.Context(), catalogdomain.ListCoursesRequest{
		PublishedOnly: true,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCourse(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	resp, err := s.catalogSvc.GetCourseDetail(c.Request.Context(), slug, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetLesson returns the full lesson body to enrolled students. Preview lessons
// are open to any signed-in user and admins see everything.
func (s *Server) GetLesson(c *gin.Context) {
	principal, ok := s.principal(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()
	isAdmin := principal.Role == userdomain.RoleAdmin

	course, err := s.catalogSvc.GetCourseBySlug(ctx, strings.TrimSpace(c.Param("slug")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !course.IsPublished && !isAdmin {
		AbortWithError(c, catalogdomain.ErrNotFound)
		return
	}

	lesson, err := s.catalogSvc.GetLesson(ctx, course.ID.String(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !lesson.IsPreview && !isAdmin {
		enrolled, err := s.enrollmentSvc.IsEnrolled(ctx, principal.UserID, course.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !enrolled {
			AbortWithError(c, ErrForbidden)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": lesson})
}

func (s *Server) AdminListCourses(c *gin.Context) {
	limit, offset, err := parseLimitOffset(c.Query("limit"), c.Query("offset"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	published, err := parseOptionalBool(c.Query("published"))
	if err != nil {
		AbortWithError(c, newValidationError("published", "invalid_published", "invalid published"))
		return
	}

	resp, err := s.catalogSvc.ListCourses(c.Request.Context(), catalogdomain.ListCoursesRequest{
		PublishedOnly: published != nil && *published,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.CreateCourse(c.Request.Context(), catalogdomain.CreateCourseRequest{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		PriceAmount: req.PriceAmount,
		Currency:    strings.TrimSpace(req.Currency),
		IsPublished: req.IsPublished,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateCourse(c *gin.Context) {
	var req updateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.UpdateCourse(c.Request.Context(), catalogdomain.UpdateCourseRequest{
		ID:          strings.TrimSpace(c.Param("id")),
		Title:       req.Title,
		Description: req.Description,
		PriceAmount: req.PriceAmount,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateModule(c *gin.Context) {
	var req createModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.AddModule(c.Request.Context(), catalogdomain.CreateModuleRequest{
		CourseID: strings.TrimSpace(c.Param("id")),
		Title:    strings.TrimSpace(req.Title),
		Position: req.Position,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateLesson(c *gin.Context) {
	var req createLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.AddLesson(c.Request.Context(), catalogdomain.CreateLessonRequest{
		ModuleID:  strings.TrimSpace(c.Param("id")),
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		VideoURL:  strings.TrimSpace(req.VideoURL),
		Position:  req.Position,
		IsPreview: req.IsPreview,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.AddResource(c.Request.Context(), catalogdomain.CreateResourceRequest{
		CourseID: strings.TrimSpace(c.Param("id")),
		Title:    strings.TrimSpace(req.Title),
		URL:      strings.TrimSpace(req.URL),
		Kind:     strings.TrimSpace(req.Kind),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateRecording(c *gin.Context) {
	var req createRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	recordedAt, err := parseOptionalTime(req.RecordedAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("recorded_at", "invalid_recorded_at", "invalid recorded_at"))
		return
	}
	var at time.Time
	if recordedAt != nil {
		at = *recordedAt
	}

	resp, err := s.catalogSvc.AddRecording(c.Request.Context(), catalogdomain.CreateRecordingRequest{
		CourseID:   strings.TrimSpace(c.Param("id")),
		Title:      strings.TrimSpace(req.Title),
		URL:        strings.TrimSpace(req.URL),
		RecordedAt: at,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
