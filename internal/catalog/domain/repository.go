package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListCourseFilter struct {
	PublishedOnly bool
	Limit         int
	Offset        int
}

type Repository interface {
	InsertCourse(ctx context.Context, db *gorm.DB, course *Course) error
	UpdateCourse(ctx context.Context, db *gorm.DB, course *Course) error
	FindCourseByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Course, error)
	FindCourseBySlug(ctx context.Context, db *gorm.DB, slug string) (*Course, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	ListCourses(ctx context.Context, db *gorm.DB, filter ListCourseFilter) ([]*Course, error)

	InsertModule(ctx context.Context, db *gorm.DB, module *Module) error
	FindModuleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Module, error)
	ListModules(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*Module, error)

	InsertLesson(ctx context.Context, db *gorm.DB, lesson *Lesson) error
	FindLessonByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lesson, error)
	ListLessons(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*Lesson, error)

	InsertResource(ctx context.Context, db *gorm.DB, resource *Resource) error
	ListResources(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*Resource, error)

	InsertRecording(ctx context.Context, db *gorm.DB, recording *Recording) error
	ListRecordings(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*Recording, error)
}
