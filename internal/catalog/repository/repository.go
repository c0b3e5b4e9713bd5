package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shikkha/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const courseColumns = `id, slug, title, description, price_amount, currency, is_published, created_at, updated_at`

func (r *repo) InsertCourse(ctx context.Context, db *gorm.DB, course *domain.Course) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO courses (`+courseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		course.ID,
		course.Slug,
		course.Title,
		course.Description,
		course.PriceAmount,
		course.Currency,
		course.IsPublished,
		course.CreatedAt,
		course.UpdatedAt,
	).Error
}

func (r *repo) UpdateCourse(ctx context.Context, db *gorm.DB, course *domain.Course) error {
	return db.WithContext(ctx).Exec(
		`UPDATE courses
		 SET title = ?, description = ?, price_amount = ?, is_published = ?, updated_at = ?
		 WHERE id = ?`,
		course.Title,
		course.Description,
		course.PriceAmount,
		course.IsPublished,
		course.UpdatedAt,
		course.ID,
	).Error
}

func (r *repo) FindCourseByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Course, error) {
	var course domain.Course
	err := db.WithContext(ctx).Raw(
		`SELECT `+courseColumns+` FROM courses WHERE id = ?`,
		id,
	).Scan(&course).Error
	if err != nil {
		return nil, err
	}
	if course.ID == 0 {
		return nil, nil
	}
	return &course, nil
}

func (r *repo) FindCourseBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Course, error) {
	var course domain.Course
	err := db.WithContext(ctx).Raw(
		`SELECT `+courseColumns+` FROM courses WHERE slug = ?`,
		slug,
	).Scan(&course).Error
	if err != nil {
		return nil, err
	}
	if course.ID == 0 {
		return nil, nil
	}
	return &course, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM courses WHERE slug = ?`,
		slug,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListCourses(ctx context.Context, db *gorm.DB, filter domain.ListCourseFilter) ([]*domain.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	args := []any{}
	if filter.PublishedOnly {
		query += ` WHERE is_published = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	var courses []*domain.Course
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *repo) InsertModule(ctx context.Context, db *gorm.DB, module *domain.Module) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO course_modules (id, course_id, title, position, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		module.ID,
		module.CourseID,
		module.Title,
		module.Position,
		module.CreatedAt,
	).Error
}

func (r *repo) FindModuleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Module, error) {
	var module domain.Module
	err := db.WithContext(ctx).Raw(
		`SELECT id, course_id, title, position, created_at FROM course_modules WHERE id = ?`,
		id,
	).Scan(&module).Error
	if err != nil {
		return nil, err
	}
	if module.ID == 0 {
		return nil, nil
	}
	return &module, nil
}

func (r *repo) ListModules(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*domain.Module, error) {
	var modules []*domain.Module
	err := db.WithContext(ctx).Raw(
		`SELECT id, course_id, title, position, created_at
		 FROM course_modules
		 WHERE course_id = ?
		 ORDER BY position ASC, id ASC`,
		courseID,
	).Scan(&modules).Error
	if err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *repo) InsertLesson(ctx context.Context, db *gorm.DB, lesson *domain.Lesson) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO lessons (id, module_id, course_id, title, content, video_url, position, is_preview, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lesson.ID,
		lesson.ModuleID,
		lesson.CourseID,
		lesson.Title,
		lesson.Content,
		lesson.VideoURL,
		lesson.Position,
		lesson.IsPreview,
		lesson.CreatedAt,
	).Error
}

func (r *repo) FindLessonByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lesson, error) {
	var lesson domain.Lesson
	err := db.WithContext(ctx).Raw(
		`SELECT id, module_id, course_id, title, content, video_url, position, is_preview, created_at
		 FROM lessons WHERE id = ?`,
		id,
	).Scan(&lesson).Error
	if err != nil {
		return nil, err
	}
	if lesson.ID == 0 {
		return nil, nil
	}
	return &lesson, nil
}

func (r *repo) ListLessons(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*domain.Lesson, error) {
	var lessons []*domain.Lesson
	err := db.WithContext(ctx).Raw(
		`SELECT id, module_id, course_id, title, content, video_url, position, is_preview, created_at
		 FROM lessons
		 WHERE course_id = ?
		 ORDER BY position ASC, id ASC`,
		courseID,
	).Scan(&lessons).Error
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

func (r *repo) InsertResource(ctx context.Context, db *gorm.DB, resource *domain.Resource) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO course_resources (id, course_id, title, url, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		resource.ID,
		resource.CourseID,
		resource.Title,
		resource.URL,
		resource.Kind,
		resource.CreatedAt,
	).Error
}

func (r *repo) ListResources(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*domain.Resource, error) {
	var resources []*domain.Resource
	err := db.WithContext(ctx).Raw(
		`SELECT id, course_id, title, url, kind, created_at
		 FROM course_resources
		 WHERE course_id = ?
		 ORDER BY created_at ASC, id ASC`,
		courseID,
	).Scan(&resources).Error
	if err != nil {
		return nil, err
	}
	return resources, nil
}

func (r *repo) InsertRecording(ctx context.Context, db *gorm.DB, recording *domain.Recording) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO recordings (id, course_id, title, url, recorded_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		recording.ID,
		recording.CourseID,
		recording.Title,
		recording.URL,
		recording.RecordedAt,
		recording.CreatedAt,
	).Error
}

func (r *repo) ListRecordings(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]*domain.Recording, error) {
	var recordings []*domain.Recording
	err := db.WithContext(ctx).Raw(
		`SELECT id, course_id, title, url, recorded_at, created_at
		 FROM recordings
		 WHERE course_id = ?
		 ORDER BY recorded_at DESC, id DESC`,
		courseID,
	).Scan(&recordings).Error
	if err != nil {
		return nil, err
	}
	return recordings, nil
}
