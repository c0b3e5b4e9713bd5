package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/shikkha/internal/catalog/domain"
	"github.com/smallbiznis/shikkha/internal/clock"
	dbpkg "github.com/smallbiznis/shikkha/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 50

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) CreateCourse(ctx context.Context, req domain.CreateCourseRequest) (domain.Course, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Course{}, domain.ErrInvalidTitle
	}
	if req.PriceAmount < 0 {
		return domain.Course{}, domain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "BDT"
	}
	if len(currency) != 3 {
		return domain.Course{}, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	course := domain.Course{
		ID:          s.genID.Generate(),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		PriceAmount: req.PriceAmount,
		Currency:    currency,
		IsPublished: req.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		courseSlug, err := s.uniqueSlug(ctx, tx, title)
		if err != nil {
			return err
		}
		course.Slug = courseSlug
		return s.repo.InsertCourse(ctx, tx, &course)
	})
	if dbpkg.ViolatesConstraint(err, "ux_courses_slug", "courses.slug") {
		// A concurrent create took the slug between the check and the insert.
		course.Slug = fmt.Sprintf("%s-%s", course.Slug, s.genID.Generate().String())
		err = s.repo.InsertCourse(ctx, s.db, &course)
	}
	if err != nil {
		s.log.Error("failed to create course", zap.String("title", title), zap.Error(err))
		return domain.Course{}, err
	}

	s.log.Info("course created",
		zap.String("course_id", course.ID.String()),
		zap.String("slug", course.Slug),
		zap.Int64("price_amount", course.PriceAmount),
	)
	return course, nil
}

func (s *Service) uniqueSlug(ctx context.Context, db *gorm.DB, title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "course"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts; i++ {
		exists, err := s.repo.SlugExists(ctx, db, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.genID.Generate().String()), nil
}

func (s *Service) UpdateCourse(ctx context.Context, req domain.UpdateCourseRequest) (domain.Course, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Course{}, err
	}

	var updated domain.Course
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := s.repo.FindCourseByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if course == nil {
			return domain.ErrNotFound
		}

		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return domain.ErrInvalidTitle
			}
			course.Title = title
		}
		if req.Description != nil {
			course.Description = strings.TrimSpace(*req.Description)
		}
		if req.PriceAmount != nil {
			if *req.PriceAmount < 0 {
				return domain.ErrInvalidPrice
			}
			course.PriceAmount = *req.PriceAmount
		}
		if req.IsPublished != nil {
			course.IsPublished = *req.IsPublished
		}
		course.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateCourse(ctx, tx, course); err != nil {
			return err
		}
		updated = *course
		return nil
	})
	if err != nil {
		return domain.Course{}, err
	}
	return updated, nil
}

func (s *Service) GetCourse(ctx context.Context, id string) (domain.Course, error) {
	courseID, err := parseID(id)
	if err != nil {
		return domain.Course{}, err
	}
	course, err := s.repo.FindCourseByID(ctx, s.db, courseID)
	if err != nil {
		return domain.Course{}, err
	}
	if course == nil {
		return domain.Course{}, domain.ErrNotFound
	}
	return *course, nil
}

func (s *Service) GetCourseBySlug(ctx context.Context, courseSlug string) (domain.Course, error) {
	courseSlug = strings.ToLower(strings.TrimSpace(courseSlug))
	if courseSlug == "" {
		return domain.Course{}, domain.ErrNotFound
	}
	course, err := s.repo.FindCourseBySlug(ctx, s.db, courseSlug)
	if err != nil {
		return domain.Course{}, err
	}
	if course == nil {
		return domain.Course{}, domain.ErrNotFound
	}
	return *course, nil
}

func (s *Service) ListCourses(ctx context.Context, req domain.ListCoursesRequest) ([]domain.Course, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	items, err := s.repo.ListCourses(ctx, s.db, domain.ListCourseFilter{
		PublishedOnly: req.PublishedOnly,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, err
	}
	courses := make([]domain.Course, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		courses = append(courses, *item)
	}
	return courses, nil
}

// GetCourseDetail returns the course outline. Lesson bodies are stripped
// unless the lesson is a preview.
func (s *Service) GetCourseDetail(ctx context.Context, courseSlug string, publishedOnly bool) (domain.CourseDetail, error) {
	course, err := s.GetCourseBySlug(ctx, courseSlug)
	if err != nil {
		return domain.CourseDetail{}, err
	}
	if publishedOnly && !course.IsPublished {
		return domain.CourseDetail{}, domain.ErrNotFound
	}

	modules, err := s.repo.ListModules(ctx, s.db, course.ID)
	if err != nil {
		return domain.CourseDetail{}, err
	}
	lessons, err := s.repo.ListLessons(ctx, s.db, course.ID)
	if err != nil {
		return domain.CourseDetail{}, err
	}
	resources, err := s.repo.ListResources(ctx, s.db, course.ID)
	if err != nil {
		return domain.CourseDetail{}, err
	}
	recordings, err := s.repo.ListRecordings(ctx, s.db, course.ID)
	if err != nil {
		return domain.CourseDetail{}, err
	}

	byModule := make(map[snowflake.ID][]domain.Lesson, len(modules))
	for _, lesson := range lessons {
		if lesson == nil {
			continue
		}
		item := *lesson
		if !item.IsPreview {
			item = item.Outline()
		}
		byModule[item.ModuleID] = append(byModule[item.ModuleID], item)
	}

	detail := domain.CourseDetail{
		Course:  course,
		Modules: make([]domain.ModuleOutline, 0, len(modules)),
	}
	for _, module := range modules {
		if module == nil {
			continue
		}
		outline := domain.ModuleOutline{Module: *module, Lessons: byModule[module.ID]}
		if outline.Lessons == nil {
			outline.Lessons = []domain.Lesson{}
		}
		detail.Modules = append(detail.Modules, outline)
	}
	for _, resource := range resources {
		if resource != nil {
			detail.Resources = append(detail.Resources, *resource)
		}
	}
	for _, recording := range recordings {
		if recording != nil {
			detail.Recordings = append(detail.Recordings, *recording)
		}
	}
	return detail, nil
}

func (s *Service) AddModule(ctx context.Context, req domain.CreateModuleRequest) (domain.Module, error) {
	courseID, err := parseID(req.CourseID)
	if err != nil {
		return domain.Module{}, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Module{}, domain.ErrInvalidTitle
	}
	if _, err := s.existingCourse(ctx, courseID); err != nil {
		return domain.Module{}, err
	}

	module := domain.Module{
		ID:        s.genID.Generate(),
		CourseID:  courseID,
		Title:     title,
		Position:  req.Position,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertModule(ctx, s.db, &module); err != nil {
		return domain.Module{}, err
	}
	return module, nil
}

func (s *Service) AddLesson(ctx context.Context, req domain.CreateLessonRequest) (domain.Lesson, error) {
	moduleID, err := parseID(req.ModuleID)
	if err != nil {
		return domain.Lesson{}, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Lesson{}, domain.ErrInvalidTitle
	}
	videoURL := strings.TrimSpace(req.VideoURL)
	if videoURL != "" && !validURL(videoURL) {
		return domain.Lesson{}, domain.ErrInvalidURL
	}

	module, err := s.repo.FindModuleByID(ctx, s.db, moduleID)
	if err != nil {
		return domain.Lesson{}, err
	}
	if module == nil {
		return domain.Lesson{}, domain.ErrModuleNotFound
	}

	lesson := domain.Lesson{
		ID:        s.genID.Generate(),
		ModuleID:  module.ID,
		CourseID:  module.CourseID,
		Title:     title,
		Content:   req.Content,
		VideoURL:  videoURL,
		Position:  req.Position,
		IsPreview: req.IsPreview,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertLesson(ctx, s.db, &lesson); err != nil {
		return domain.Lesson{}, err
	}
	return lesson, nil
}

// GetLesson returns the full lesson. Callers are responsible for checking
// access before exposing a non-preview body.
func (s *Service) GetLesson(ctx context.Context, courseID, lessonID string) (domain.Lesson, error) {
	cid, err := parseID(courseID)
	if err != nil {
		return domain.Lesson{}, err
	}
	lid, err := parseID(lessonID)
	if err != nil {
		return domain.Lesson{}, err
	}
	lesson, err := s.repo.FindLessonByID(ctx, s.db, lid)
	if err != nil {
		return domain.Lesson{}, err
	}
	if lesson == nil || lesson.CourseID != cid {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	return *lesson, nil
}

func (s *Service) AddResource(ctx context.Context, req domain.CreateResourceRequest) (domain.Resource, error) {
	courseID, err := parseID(req.CourseID)
	if err != nil {
		return domain.Resource{}, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Resource{}, domain.ErrInvalidTitle
	}
	link := strings.TrimSpace(req.URL)
	if !validURL(link) {
		return domain.Resource{}, domain.ErrInvalidURL
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	switch kind {
	case "":
		kind = "link"
	case "link", "file", "slides", "code":
	default:
		return domain.Resource{}, domain.ErrInvalidKind
	}
	if _, err := s.existingCourse(ctx, courseID); err != nil {
		return domain.Resource{}, err
	}

	resource := domain.Resource{
		ID:        s.genID.Generate(),
		CourseID:  courseID,
		Title:     title,
		URL:       link,
		Kind:      kind,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertResource(ctx, s.db, &resource); err != nil {
		return domain.Resource{}, err
	}
	return resource, nil
}

func (s *Service) AddRecording(ctx context.Context, req domain.CreateRecordingRequest) (domain.Recording, error) {
	courseID, err := parseID(req.CourseID)
	if err != nil {
		return domain.Recording{}, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Recording{}, domain.ErrInvalidTitle
	}
	link := strings.TrimSpace(req.URL)
	if !validURL(link) {
		return domain.Recording{}, domain.ErrInvalidURL
	}
	if _, err := s.existingCourse(ctx, courseID); err != nil {
		return domain.Recording{}, err
	}

	now := s.clock.Now()
	recordedAt := req.RecordedAt.UTC()
	if req.RecordedAt.IsZero() {
		recordedAt = now
	}
	recording := domain.Recording{
		ID:         s.genID.Generate(),
		CourseID:   courseID,
		Title:      title,
		URL:        link,
		RecordedAt: recordedAt,
		CreatedAt:  now,
	}
	if err := s.repo.InsertRecording(ctx, s.db, &recording); err != nil {
		return domain.Recording{}, err
	}
	return recording, nil
}

func (s *Service) existingCourse(ctx context.Context, id snowflake.ID) (*domain.Course, error) {
	course, err := s.repo.FindCourseByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, domain.ErrNotFound
	}
	return course, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func validURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
