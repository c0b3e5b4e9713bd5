package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	enrollmentdomain "github.com/smallbiznis/shikkha/internal/enrollment/domain"
)

type createEnrollmentRequest struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

type enrollmentView struct {
	enrollmentdomain.Enrollment
	Course *catalogdomain.Course `json:"course,omitempty"`
}

func (s *Server) ListMyEnrollments(c *gin.Context) {
	principal, ok := s.principal(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()

	items, err := s.enrollmentSvc.ListByUser(ctx, principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]enrollmentView, 0, len(items))
	for _, item := range items {
		view := enrollmentView{Enrollment: item}
		course, err := s.catalogSvc.GetCourse(ctx, item.CourseID.String())
		switch {
		case err == nil:
			view.Course = &course
		case errors.Is(err, catalogdomain.ErrNotFound):
		default:
			AbortWithError(c, err)
			return
		}
		resp = append(resp, view)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CreateEnrollment grants a course manually, outside of checkout.
func (s *Server) CreateEnrollment(c *gin.Context) {
	var req createEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ctx := c.Request.Context()

	user, err := s.userSvc.GetByID(ctx, strings.TrimSpace(req.UserID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	course, err := s.catalogSvc.GetCourse(ctx, strings.TrimSpace(req.CourseID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.enrollmentSvc.Enroll(ctx, enrollmentdomain.EnrollRequest{
		UserID:   user.ID,
		CourseID: course.ID,
		Source:   enrollmentdomain.SourceManual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp.Enrollment})
}

func (s *Server) ListCourseEnrollments(c *gin.Context) {
	limit, offset, err := parseLimitOffset(c.Query("limit"), c.Query("offset"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ctx := c.Request.Context()

	course, err := s.catalogSvc.GetCourse(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.enrollmentSvc.ListByCourse(ctx, course.ID, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
