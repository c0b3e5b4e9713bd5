package domain

import (
	"context"
	"errors"
	"time"
)

type CreateCourseRequest struct {
	Title       string
	Description string
	PriceAmount int64
	Currency    string
	IsPublished bool
}

type UpdateCourseRequest struct {
	ID          string
	Title       *string
	Description *string
	PriceAmount *int64
	IsPublished *bool
}

type ListCoursesRequest struct {
	PublishedOnly bool
	Limit         int
	Offset        int
}

type CreateModuleRequest struct {
	CourseID string
	Title    string
	Position int
}

type CreateLessonRequest struct {
	ModuleID  string
	Title     string
	Content   string
	VideoURL  string
	Position  int
	IsPreview bool
}

type CreateResourceRequest struct {
	CourseID string
	Title    string
	URL      string
	Kind     string
}

type CreateRecordingRequest struct {
	CourseID   string
	Title      string
	URL        string
	RecordedAt time.Time
}

type Service interface {
	CreateCourse(ctx context.Context, req CreateCourseRequest) (Course, error)
	UpdateCourse(ctx context.Context, req UpdateCourseRequest) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	GetCourseBySlug(ctx context.Context, slug string) (Course, error)
	ListCourses(ctx context.Context, req ListCoursesRequest) ([]Course, error)
	GetCourseDetail(ctx context.Context, slug string, publishedOnly bool) (CourseDetail, error)

	AddModule(ctx context.Context, req CreateModuleRequest) (Module, error)
	AddLesson(ctx context.Context, req CreateLessonRequest) (Lesson, error)
	GetLesson(ctx context.Context, courseID, lessonID string) (Lesson, error)
	AddResource(ctx context.Context, req CreateResourceRequest) (Resource, error)
	AddRecording(ctx context.Context, req CreateRecordingRequest) (Recording, error)
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidTitle    = errors.New("invalid_title")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidURL      = errors.New("invalid_url")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrNotFound        = errors.New("course_not_found")
	ErrModuleNotFound  = errors.New("module_not_found")
	ErrLessonNotFound  = errors.New("lesson_not_found")
)
