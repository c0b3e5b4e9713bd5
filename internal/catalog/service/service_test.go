package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/shikkha/internal/catalog/domain"
	"github.com/smallbiznis/shikkha/internal/catalog/repository"
	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:catalog_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Course{},
		&domain.Module{},
		&domain.Lesson{},
		&domain.Resource{},
		&domain.Recording{},
	))
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		DB:    setupTestDB(t),
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		GenID: node,
		Repo:  repository.Provide(),
	}).(*Service)
}

func TestCreateCourseGeneratesUniqueSlugs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Go for Backend Engineers", PriceAmount: 150000})
	require.NoError(t, err)
	assert.Equal(t, "go-for-backend-engineers", first.Slug)
	assert.Equal(t, "BDT", first.Currency)

	second, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Go for Backend Engineers", PriceAmount: 150000})
	require.NoError(t, err)
	assert.Equal(t, "go-for-backend-engineers-2", second.Slug)

	found, err := svc.GetCourseBySlug(ctx, "go-for-backend-engineers-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestCreateCourseValidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	_, err = svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "SQL", PriceAmount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "SQL", Currency: "TAKA"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestUpdateCoursePartialFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Networking", PriceAmount: 5000})
	require.NoError(t, err)

	published := true
	price := int64(7500)
	updated, err := svc.UpdateCourse(ctx, domain.UpdateCourseRequest{
		ID:          course.ID.String(),
		PriceAmount: &price,
		IsPublished: &published,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), updated.PriceAmount)
	assert.True(t, updated.IsPublished)
	assert.Equal(t, "Networking", updated.Title)
	assert.Equal(t, course.Slug, updated.Slug)

	_, err = svc.UpdateCourse(ctx, domain.UpdateCourseRequest{ID: "12345"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListCoursesPublishedOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Draft", PriceAmount: 100})
	require.NoError(t, err)
	live, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Live", PriceAmount: 100, IsPublished: true})
	require.NoError(t, err)

	public, err := svc.ListCourses(ctx, domain.ListCoursesRequest{PublishedOnly: true})
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, live.ID, public[0].ID)

	all, err := svc.ListCourses(ctx, domain.ListCoursesRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCourseDetailStripsGatedLessons(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Distributed Systems", PriceAmount: 200000, IsPublished: true})
	require.NoError(t, err)
	module, err := svc.AddModule(ctx, domain.CreateModuleRequest{CourseID: course.ID.String(), Title: "Consensus"})
	require.NoError(t, err)

	preview, err := svc.AddLesson(ctx, domain.CreateLessonRequest{
		ModuleID:  module.ID.String(),
		Title:     "Intro",
		Content:   "free content",
		IsPreview: true,
	})
	require.NoError(t, err)
	gated, err := svc.AddLesson(ctx, domain.CreateLessonRequest{
		ModuleID: module.ID.String(),
		Title:    "Raft",
		Content:  "paid content",
		VideoURL: "https://videos.example.com/raft",
		Position: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, course.ID, gated.CourseID)

	_, err = svc.AddResource(ctx, domain.CreateResourceRequest{CourseID: course.ID.String(), Title: "Paper", URL: "https://raft.github.io/raft.pdf", Kind: "file"})
	require.NoError(t, err)
	_, err = svc.AddRecording(ctx, domain.CreateRecordingRequest{CourseID: course.ID.String(), Title: "Live Q&A", URL: "https://videos.example.com/qa"})
	require.NoError(t, err)

	detail, err := svc.GetCourseDetail(ctx, course.Slug, true)
	require.NoError(t, err)
	require.Len(t, detail.Modules, 1)
	require.Len(t, detail.Modules[0].Lessons, 2)
	assert.Equal(t, preview.ID, detail.Modules[0].Lessons[0].ID)
	assert.Equal(t, "free content", detail.Modules[0].Lessons[0].Content)
	assert.Empty(t, detail.Modules[0].Lessons[1].Content)
	assert.Empty(t, detail.Modules[0].Lessons[1].VideoURL)
	assert.Len(t, detail.Resources, 1)
	assert.Len(t, detail.Recordings, 1)

	full, err := svc.GetLesson(ctx, course.ID.String(), gated.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "paid content", full.Content)

	_, err = svc.GetLesson(ctx, "42", gated.ID.String())
	assert.ErrorIs(t, err, domain.ErrLessonNotFound)
}

func TestCourseDetailHidesDrafts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Hidden"})
	require.NoError(t, err)

	_, err = svc.GetCourseDetail(ctx, course.Slug, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetCourseDetail(ctx, course.Slug, false)
	assert.NoError(t, err)
}

func TestAddResourceRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, domain.CreateCourseRequest{Title: "Links"})
	require.NoError(t, err)

	_, err = svc.AddResource(ctx, domain.CreateResourceRequest{CourseID: course.ID.String(), Title: "x", URL: "ftp://example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = svc.AddResource(ctx, domain.CreateResourceRequest{CourseID: course.ID.String(), Title: "x", URL: "https://example.com", Kind: "torrent"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = svc.AddModule(ctx, domain.CreateModuleRequest{CourseID: "not-an-id", Title: "m"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
