package seed

import (
	"context"
	"errors"

	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
	"go.uber.org/zap"
)

const (
	demoCourseTitle       = "Getting Started with Shikkha"
	demoCourseSlug        = "getting-started-with-shikkha"
	demoCourseDescription = "A free tour of how courses, lessons and recordings are organised."
	demoCoursePrice       = 50000
	demoCourseCurrency    = "BDT"
)

// Options selects what Run seeds. Empty fields are skipped.
type Options struct {
	AdminID    string
	AdminEmail string
	DemoCourse bool
}

// Run applies startup bootstrap data. Every step is idempotent.
func Run(ctx context.Context, users userdomain.Service, catalog catalogdomain.Service, opts Options, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.AdminID != "" {
		if err := EnsureAdmin(ctx, users, opts.AdminID, opts.AdminEmail); err != nil {
			return err
		}
		log.Info("bootstrap admin ensured", zap.String("user_id", opts.AdminID))
	}
	if opts.DemoCourse {
		course, err := EnsureDemoCourse(ctx, catalog)
		if err != nil {
			return err
		}
		log.Info("demo course ensured", zap.String("slug", course.Slug))
	}
	return nil
}

// EnsureAdmin mirrors the given auth subject and promotes it to admin.
func EnsureAdmin(ctx context.Context, users userdomain.Service, id, email string) error {
	if users == nil {
		return errors.New("seed user service is required")
	}
	user, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{
		ID:    id,
		Email: email,
		Role:  userdomain.RoleAdmin,
	})
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return nil
	}
	_, err = users.SetRole(ctx, user.ID, userdomain.RoleAdmin)
	return err
}

// EnsureDemoCourse creates a published course with one preview lesson and one
// gated lesson, unless it already exists.
func EnsureDemoCourse(ctx context.Context, catalog catalogdomain.Service) (catalogdomain.Course, error) {
	if catalog == nil {
		return catalogdomain.Course{}, errors.New("seed catalog service is required")
	}

	existing, err := catalog.GetCourseBySlug(ctx, demoCourseSlug)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, catalogdomain.ErrNotFound) {
		return catalogdomain.Course{}, err
	}

	course, err := catalog.CreateCourse(ctx, catalogdomain.CreateCourseRequest{
		Title:       demoCourseTitle,
		Description: demoCourseDescription,
		PriceAmount: demoCoursePrice,
		Currency:    demoCourseCurrency,
		IsPublished: true,
	})
	if err != nil {
		return catalogdomain.Course{}, err
	}

	module, err := catalog.AddModule(ctx, catalogdomain.CreateModuleRequest{
		CourseID: course.ID.String(),
		Title:    "Orientation",
		Position: 1,
	})
	if err != nil {
		return catalogdomain.Course{}, err
	}

	lessons := []catalogdomain.CreateLessonRequest{
		{Title: "Welcome", Content: "How this course is laid out.", Position: 1, IsPreview: true},
		{Title: "Your first assignment", Content: "Open the resources tab and start the exercise.", Position: 2},
	}
	for _, lesson := range lessons {
		lesson.ModuleID = module.ID.String()
		if _, err := catalog.AddLesson(ctx, lesson); err != nil {
			return catalogdomain.Course{}, err
		}
	}

	return course, nil
}
