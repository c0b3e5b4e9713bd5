package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	catalogrepository "github.com/smallbiznis/shikkha/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/shikkha/internal/catalog/service"
	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/config"
	enrollmentdomain "github.com/smallbiznis/shikkha/internal/enrollment/domain"
	enrollmentrepository "github.com/smallbiznis/shikkha/internal/enrollment/repository"
	enrollmentservice "github.com/smallbiznis/shikkha/internal/enrollment/service"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"github.com/smallbiznis/shikkha/internal/payment/repository"
	"github.com/smallbiznis/shikkha/internal/providers/pdf"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
	userrepository "github.com/smallbiznis/shikkha/internal/user/repository"
	userservice "github.com/smallbiznis/shikkha/internal/user/service"
	"github.com/smallbiznis/shikkha/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.CreatePaymentResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) ExecutePayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	args := m.Called(ctx, paymentID)
	resp, _ := args.Get(0).(*domain.GatewayPayment)
	return resp, args.Error(1)
}

func (m *mockGateway) QueryPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	args := m.Called(ctx, paymentID)
	resp, _ := args.Get(0).(*domain.GatewayPayment)
	return resp, args.Error(1)
}

func (m *mockGateway) RefundPayment(ctx context.Context, req domain.RefundRequest) (*domain.RefundResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.RefundResponse)
	return resp, args.Error(1)
}

type mockEnrollments struct {
	mock.Mock
}

func (m *mockEnrollments) Enroll(ctx context.Context, req enrollmentdomain.EnrollRequest) (enrollmentdomain.EnrollResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(enrollmentdomain.EnrollResult)
	return result, args.Error(1)
}

func (m *mockEnrollments) IsEnrolled(ctx context.Context, userID string, courseID snowflake.ID) (bool, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Bool(0), args.Error(1)
}

func (m *mockEnrollments) ListByUser(ctx context.Context, userID string) ([]enrollmentdomain.Enrollment, error) {
	return nil, nil
}

func (m *mockEnrollments) ListByCourse(ctx context.Context, courseID snowflake.ID, limit, offset int) ([]enrollmentdomain.Enrollment, error) {
	return nil, nil
}

type fixture struct {
	svc         *Service
	db          *gorm.DB
	clock       *clock.FakeClock
	gateway     *mockGateway
	catalog     catalogdomain.Service
	enrollments enrollmentdomain.Service
	users       userdomain.Service
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&domain.PaymentRecord{},
		&domain.EnrollmentGrant{},
		&enrollmentdomain.Enrollment{},
		&catalogdomain.Course{},
		&userdomain.User{},
	))
	return db
}

func newFixture(t *testing.T, enrollments enrollmentdomain.Service) *fixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	catalog := catalogservice.New(catalogservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: catalogrepository.Provide(),
	})
	users := userservice.New(userservice.Params{
		DB: db, Log: log, Clock: clk, Repo: userrepository.Provide(),
	})
	if enrollments == nil {
		enrollments = enrollmentservice.New(enrollmentservice.Params{
			DB: db, Log: log, Clock: clk, GenID: node, Repo: enrollmentrepository.Provide(),
		})
	}
	gateway := &mockGateway{}

	svc := New(Params{
		DB:          db,
		Log:         log,
		Clock:       clk,
		GenID:       node,
		Config:      config.Config{PublicURL: "https://api.shikkha.test/", AppName: "Shikkha"},
		Settings:    config.NewStaticPaymentSettings(config.DefaultPaymentSettings()),
		Repo:        repository.Provide(),
		Grants:      repository.ProvideGrants(),
		Gateway:     gateway,
		Enrollments: enrollments,
		Catalog:     catalog,
		Users:       users,
		Receipts:    pdf.NewMarotoRenderer("Shikkha"),
	}).(*Service)

	return &fixture{
		svc:         svc,
		db:          db,
		clock:       clk,
		gateway:     gateway,
		catalog:     catalog,
		enrollments: enrollments,
		users:       users,
	}
}

func (f *fixture) course(t *testing.T, price int64, published bool) catalogdomain.Course {
	t.Helper()
	course, err := f.catalog.CreateCourse(context.Background(), catalogdomain.CreateCourseRequest{
		Title:       fmt.Sprintf("Course %d", time.Now().UnixNano()),
		PriceAmount: price,
		IsPublished: published,
	})
	require.NoError(t, err)
	return course
}

func (f *fixture) expectCreate(gatewayPaymentID string) {
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything).Return(&domain.CreatePaymentResponse{
		PaymentID:         gatewayPaymentID,
		RedirectURL:       "https://sandbox.payment.bkash.com/?paymentId=" + gatewayPaymentID,
		TransactionStatus: "Initiated",
		StatusCode:        domain.StatusCodeSuccess,
		Raw:               []byte(`{"paymentID":"` + gatewayPaymentID + `"}`),
	}, nil).Once()
}

func completed(gatewayPaymentID string) *domain.GatewayPayment {
	return &domain.GatewayPayment{
		PaymentID:         gatewayPaymentID,
		TrxID:             "TRX-" + gatewayPaymentID,
		TransactionStatus: "Completed",
		Amount:            "50.00",
		Currency:          "BDT",
		StatusCode:        domain.StatusCodeSuccess,
		Raw:               []byte(`{"transactionStatus":"Completed"}`),
	}
}

func countPayments(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.PaymentRecord{}).Count(&count).Error)
	return count
}

func TestCheckoutAndSuccessfulCallbackEnrolls(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	f.expectCreate("TR001")

	checkout, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-1", CourseID: course.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, checkout.Payment.Status)
	assert.Equal(t, int64(5000), checkout.Payment.Amount)
	assert.NotEmpty(t, checkout.Payment.TransactionID)
	require.NotNil(t, checkout.Payment.GatewayPaymentID)
	assert.Equal(t, "TR001", *checkout.Payment.GatewayPaymentID)
	assert.Contains(t, checkout.RedirectURL, "TR001")

	createCall := f.gateway.Calls[0].Arguments.Get(1).(domain.CreatePaymentRequest)
	assert.Equal(t, "https://api.shikkha.test"+CallbackPath, createCall.CallbackURL)
	assert.Equal(t, checkout.Payment.TransactionID, createCall.MerchantInvoiceNumber)
	assert.Equal(t, int64(5000), createCall.Amount)

	f.gateway.On("ExecutePayment", mock.Anything, "TR001").Return(completed("TR001"), nil).Once()
	result, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR001", Status: "success"})
	require.NoError(t, err)
	assert.True(t, result.Enrolled)
	assert.Equal(t, domain.StatusSuccessful, result.Payment.Status)
	assert.True(t, result.Payment.IsVerified)
	require.NotNil(t, result.Payment.PaidAt)
	require.NotNil(t, result.Payment.GatewayTrxID)
	assert.Equal(t, "TRX-TR001", *result.Payment.GatewayTrxID)

	enrolled, err := f.enrollments.IsEnrolled(ctx, "student-1", course.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	grant, err := f.svc.grants.FindByPaymentID(ctx, f.db, result.Payment.ID)
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, domain.GrantStatusDone, grant.Status)
}

func TestCheckoutBelowMinimumWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	course := f.course(t, 0, true)

	_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{UserID: "student-1", CourseID: course.ID.String()})
	require.Error(t, err)

	var statusErr *domain.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, domain.StatusCodeMinimumAmount, statusErr.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, int64(0), countPayments(t, f.db))
	f.gateway.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestCheckoutRejectsUnpublishedAndEnrolled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	draft := f.course(t, 5000, false)
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-1", CourseID: draft.ID.String()})
	assert.ErrorIs(t, err, domain.ErrCourseNotPurchasable)

	owned := f.course(t, 5000, true)
	_, err = f.enrollments.Enroll(ctx, enrollmentdomain.EnrollRequest{UserID: "student-1", CourseID: owned.ID, Source: enrollmentdomain.SourceManual})
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-1", CourseID: owned.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "", CourseID: owned.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, int64(0), countPayments(t, f.db))
}

func TestCheckoutGatewayFailureMarksFailed(t *testing.T) {
	f := newFixture(t, nil)
	course := f.course(t, 5000, true)
	gatewayErr := &domain.StatusError{Code: "2001", Message: "Invalid App Key", Err: domain.ErrGateway}
	f.gateway.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, gatewayErr).Once()

	_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{UserID: "student-1", CourseID: course.ID.String()})
	assert.ErrorIs(t, err, domain.ErrGateway)

	var stored domain.PaymentRecord
	require.NoError(t, f.db.First(&stored).Error)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, domain.FailureReasonGateway, *stored.FailureReason)
}

func TestDuplicateCallbackIsAlreadyProcessed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	f.expectCreate("TR002")
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-2", CourseID: course.ID.String()})
	require.NoError(t, err)

	f.gateway.On("ExecutePayment", mock.Anything, "TR002").Return(completed("TR002"), nil).Once()
	_, err = f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR002", Status: "success"})
	require.NoError(t, err)

	again, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR002", Status: "success"})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, domain.StatusSuccessful, again.Payment.Status)
	f.gateway.AssertNumberOfCalls(t, "ExecutePayment", 1)

	var enrollments int64
	require.NoError(t, f.db.Model(&enrollmentdomain.Enrollment{}).Count(&enrollments).Error)
	assert.Equal(t, int64(1), enrollments)
}

func TestCallbackCancelAndDecline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)

	f.expectCreate("TR-C")
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-3", CourseID: course.ID.String()})
	require.NoError(t, err)
	cancelled, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-C", Status: "cancel"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, cancelled.Payment.Status)
	require.NotNil(t, cancelled.Payment.FailureReason)
	assert.Equal(t, domain.FailureReasonCancelled, *cancelled.Payment.FailureReason)

	f.expectCreate("TR-D")
	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-3", CourseID: course.ID.String()})
	require.NoError(t, err)
	declined := completed("TR-D")
	declined.TransactionStatus = "Failed"
	declined.StatusCode = "2056"
	f.gateway.On("ExecutePayment", mock.Anything, "TR-D").Return(declined, nil).Once()
	f.gateway.On("QueryPayment", mock.Anything, "TR-D").Return(declined, nil).Once()
	result, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-D", Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Payment.Status)
	assert.False(t, result.Payment.IsVerified)

	_, err = f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "missing", Status: "success"})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestExecuteTransportErrorLeavesPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	f.expectCreate("TR-T")
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-4", CourseID: course.ID.String()})
	require.NoError(t, err)

	transport := &domain.StatusError{Message: "connection reset", Err: domain.ErrGateway}
	f.gateway.On("ExecutePayment", mock.Anything, "TR-T").Return(nil, transport).Once()
	result, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-T", Status: "success"})
	assert.ErrorIs(t, err, domain.ErrGateway)
	assert.Equal(t, domain.StatusPending, result.Payment.Status)
}

func TestReplayedCallbackAfterLostExecuteResponseEnrolls(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	_, err := f.users.EnsureUser(ctx, userdomain.EnsureUserRequest{ID: "student-4b", Email: "s4b@example.com"})
	require.NoError(t, err)
	f.expectCreate("TR-L")
	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-4b", CourseID: course.ID.String()})
	require.NoError(t, err)

	transport := &domain.StatusError{Message: "read: connection reset by peer", Err: domain.ErrGateway}
	f.gateway.On("ExecutePayment", mock.Anything, "TR-L").Return(nil, transport).Once()
	first, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-L", Status: "success"})
	assert.ErrorIs(t, err, domain.ErrGateway)
	assert.Equal(t, domain.StatusPending, first.Payment.Status)

	alreadyExecuted := &domain.GatewayPayment{
		PaymentID:     "TR-L",
		StatusCode:    "2117",
		StatusMessage: "Payment execution already been called before",
	}
	f.gateway.On("ExecutePayment", mock.Anything, "TR-L").Return(alreadyExecuted, nil).Once()
	f.gateway.On("QueryPayment", mock.Anything, "TR-L").Return(completed("TR-L"), nil).Once()

	second, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-L", Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, second.Payment.Status)
	assert.True(t, second.Payment.IsVerified)
	assert.True(t, second.Enrolled)

	enrolled, err := f.enrollments.IsEnrolled(ctx, "student-4b", course.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)
	f.gateway.AssertExpectations(t)
}

func TestRejectedExecuteWithFailedQueryLeavesPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	f.expectCreate("TR-Q")
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-4c", CourseID: course.ID.String()})
	require.NoError(t, err)

	f.gateway.On("ExecutePayment", mock.Anything, "TR-Q").Return(&domain.GatewayPayment{PaymentID: "TR-Q", StatusCode: "2117"}, nil).Once()
	f.gateway.On("QueryPayment", mock.Anything, "TR-Q").Return(nil, &domain.StatusError{Message: "timeout", Err: domain.ErrGateway}).Once()

	result, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-Q", Status: "success"})
	assert.ErrorIs(t, err, domain.ErrGateway)
	assert.Equal(t, domain.StatusPending, result.Payment.Status)
}

func TestSuccessStaysSuccessfulWhenEnrollmentFails(t *testing.T) {
	enrollments := &mockEnrollments{}
	f := newFixture(t, enrollments)
	ctx := context.Background()

	record, err := f.svc.CreatePaymentRecord(ctx, domain.CreateRecordRequest{
		UserID:        "student-5",
		CourseID:      42,
		Amount:        5000,
		TransactionID: "TXN-ENROLL-FAIL",
	})
	require.NoError(t, err)

	enrollments.On("Enroll", mock.Anything, mock.Anything).
		Return(enrollmentdomain.EnrollResult{}, errors.New("database is locked")).Once()

	paid, enrolled, err := f.svc.ProcessSuccessfulPayment(ctx, domain.SuccessRequest{
		PaymentID:        record.ID,
		GatewayPaymentID: "TR-E",
		GatewayTrxID:     "TRX-E",
	})
	require.NoError(t, err)
	assert.False(t, enrolled)
	assert.Equal(t, domain.StatusSuccessful, paid.Status)
	assert.True(t, paid.IsVerified)

	grant, err := f.svc.grants.FindByPaymentID(ctx, f.db, record.ID)
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, domain.GrantStatusPending, grant.Status)
	assert.Equal(t, 1, grant.Attempts)
	require.NotNil(t, grant.LastError)
	assert.Contains(t, *grant.LastError, "locked")
	assert.True(t, grant.NextAttemptAt.After(f.clock.Now()))

	// Not due yet.
	result, err := f.svc.ProcessDueGrants(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)

	enrollments.On("Enroll", mock.Anything, mock.MatchedBy(func(req enrollmentdomain.EnrollRequest) bool {
		return req.UserID == "student-5" && req.Source == enrollmentdomain.SourcePayment &&
			req.PaymentID != nil && *req.PaymentID == record.ID
	})).Return(enrollmentdomain.EnrollResult{Created: true}, nil).Once()

	f.clock.Advance(time.Hour)
	result, err = f.svc.ProcessDueGrants(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantResult{Processed: 1, Enrolled: 1}, result)
	enrollments.AssertExpectations(t)

	stored, err := f.svc.Get(ctx, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, stored.Status)
}

func TestProcessFailedRejectsSettledPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	record, err := f.svc.CreatePaymentRecord(ctx, domain.CreateRecordRequest{
		UserID: "student-6", CourseID: 7, Amount: 1000, TransactionID: "TXN-1",
	})
	require.NoError(t, err)

	_, err = f.svc.CreatePaymentRecord(ctx, domain.CreateRecordRequest{
		UserID: "student-6", CourseID: 7, Amount: 1000, TransactionID: "TXN-1",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)

	_, err = f.svc.ProcessFailedPayment(ctx, record.ID, domain.FailureReasonDeclined, nil)
	require.NoError(t, err)
	_, err = f.svc.ProcessFailedPayment(ctx, record.ID, domain.FailureReasonDeclined, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	_, _, err = f.svc.ProcessSuccessfulPayment(ctx, domain.SuccessRequest{PaymentID: record.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRefundSuccessfulPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	f.expectCreate("TR-R")
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-7", CourseID: course.ID.String()})
	require.NoError(t, err)
	f.gateway.On("ExecutePayment", mock.Anything, "TR-R").Return(completed("TR-R"), nil).Once()
	paid, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-R", Status: "success"})
	require.NoError(t, err)

	f.gateway.On("RefundPayment", mock.Anything, mock.MatchedBy(func(req domain.RefundRequest) bool {
		return req.PaymentID == "TR-R" && req.TrxID == "TRX-TR-R" && req.Amount == 5000
	})).Return(&domain.RefundResponse{RefundTrxID: "RTRX", TransactionStatus: "Completed", Raw: []byte(`{}`)}, nil).Once()

	refunded, err := f.svc.Refund(ctx, domain.RefundPaymentRequest{PaymentID: paid.Payment.ID.String(), Reason: "duplicate purchase"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)

	_, err = f.svc.Refund(ctx, domain.RefundPaymentRequest{PaymentID: paid.Payment.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	f.gateway.AssertNumberOfCalls(t, "RefundPayment", 1)
}

func TestConcurrentRefundCallsGatewayOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	f.expectCreate("TR-RR")
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-7b", CourseID: course.ID.String()})
	require.NoError(t, err)
	f.gateway.On("ExecutePayment", mock.Anything, "TR-RR").Return(completed("TR-RR"), nil).Once()
	paid, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-RR", Status: "success"})
	require.NoError(t, err)
	paymentID := paid.Payment.ID.String()

	// A second admin refund lands while the first is waiting on the gateway.
	var overlapping error
	f.gateway.On("RefundPayment", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		_, overlapping = f.svc.Refund(ctx, domain.RefundPaymentRequest{PaymentID: paymentID})
	}).Return(&domain.RefundResponse{RefundTrxID: "RTRX-1", TransactionStatus: "Completed", Raw: []byte(`{}`)}, nil).Once()

	refunded, err := f.svc.Refund(ctx, domain.RefundPaymentRequest{PaymentID: paymentID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.ErrorIs(t, overlapping, domain.ErrRefundInProgress)
	f.gateway.AssertNumberOfCalls(t, "RefundPayment", 1)
}

func TestFailedRefundReleasesClaim(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	f.expectCreate("TR-RF")
	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-7c", CourseID: course.ID.String()})
	require.NoError(t, err)
	f.gateway.On("ExecutePayment", mock.Anything, "TR-RF").Return(completed("TR-RF"), nil).Once()
	paid, err := f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-RF", Status: "success"})
	require.NoError(t, err)
	paymentID := paid.Payment.ID.String()

	f.gateway.On("RefundPayment", mock.Anything, mock.Anything).
		Return(nil, &domain.StatusError{Code: "2071", Message: "refund not allowed yet", Err: domain.ErrGateway}).Once()
	_, err = f.svc.Refund(ctx, domain.RefundPaymentRequest{PaymentID: paymentID})
	assert.ErrorIs(t, err, domain.ErrGateway)

	f.gateway.On("RefundPayment", mock.Anything, mock.Anything).
		Return(&domain.RefundResponse{RefundTrxID: "RTRX-2", TransactionStatus: "Completed", Raw: []byte(`{}`)}, nil).Once()
	refunded, err := f.svc.Refund(ctx, domain.RefundPaymentRequest{PaymentID: paymentID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	f.gateway.AssertNumberOfCalls(t, "RefundPayment", 2)
}

func TestStaleRefundClaimCanBeRetaken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	record, err := f.svc.CreatePaymentRecord(ctx, domain.CreateRecordRequest{
		UserID: "student-7d", CourseID: 7, Amount: 1000, TransactionID: "TXN-CLAIM",
	})
	require.NoError(t, err)
	_, _, err = f.svc.ProcessSuccessfulPayment(ctx, domain.SuccessRequest{
		PaymentID: record.ID, GatewayPaymentID: "TR-CLAIM", GatewayTrxID: "TRX-CLAIM",
	})
	require.NoError(t, err)

	now := f.clock.Now()
	claimed, err := f.svc.repo.ClaimRefund(ctx, f.db, record.ID, now, now.Add(-refundClaimTTL))
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = f.svc.repo.ClaimRefund(ctx, f.db, record.ID, now, now.Add(-refundClaimTTL))
	require.NoError(t, err)
	assert.False(t, claimed)

	later := now.Add(refundClaimTTL + time.Second)
	claimed, err = f.svc.repo.ClaimRefund(ctx, f.db, record.ID, later, later.Add(-refundClaimTTL))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestReconcileSettlesStalePayments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)

	// No gateway id: nothing to ask the gateway about.
	orphan, err := f.svc.CreatePaymentRecord(ctx, domain.CreateRecordRequest{
		UserID: "student-8", CourseID: course.ID, Amount: 5000, TransactionID: "TXN-ORPHAN",
	})
	require.NoError(t, err)

	// Callback lost but the gateway completed it.
	f.expectCreate("TR-LOST")
	lost, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-9", CourseID: course.ID.String()})
	require.NoError(t, err)

	// Still initiated and young: left alone.
	young := f.course(t, 5000, true)
	f.clock.Advance(40 * time.Minute)
	f.expectCreate("TR-YOUNG")
	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-10", CourseID: young.ID.String()})
	require.NoError(t, err)

	f.gateway.On("QueryPayment", mock.Anything, "TR-LOST").Return(completed("TR-LOST"), nil)
	initiated := completed("TR-YOUNG")
	initiated.TransactionStatus = "Initiated"
	f.gateway.On("QueryPayment", mock.Anything, "TR-YOUNG").Return(initiated, nil)

	result, err := f.svc.Reconcile(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileResult{Checked: 2, Successful: 1, Failed: 1}, result)
	f.gateway.AssertNotCalled(t, "QueryPayment", mock.Anything, "TR-YOUNG")

	f.clock.Advance(31 * time.Minute)
	result, err = f.svc.Reconcile(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileResult{Checked: 1, Skipped: 1}, result)

	f.clock.Advance(25 * time.Hour)
	result, err = f.svc.Reconcile(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileResult{Checked: 1, Failed: 1}, result)

	stored, err := f.svc.Get(ctx, orphan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, domain.FailureReasonAbandoned, *stored.FailureReason)

	paid, err := f.svc.Get(ctx, lost.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, paid.Status)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.svc.CreatePaymentRecord(ctx, domain.CreateRecordRequest{
			UserID: "student-11", CourseID: 9, Amount: 1000, TransactionID: fmt.Sprintf("TXN-%d", i),
		})
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, domain.ListPaymentsRequest{UserID: "student-11", PageSize: 3})
	require.NoError(t, err)
	require.Len(t, first.Payments, 3)
	assert.True(t, first.PageInfo.HasMore)
	assert.Equal(t, "TXN-4", first.Payments[0].TransactionID)

	cursor, err := pagination.DecodeCursor(first.PageInfo.NextPageToken)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, first.Payments[2].ID.String(), cursor.ID)
	_, err = time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	assert.NoError(t, err)

	second, err := f.svc.List(ctx, domain.ListPaymentsRequest{UserID: "student-11", PageSize: 3, PageToken: first.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Payments, 2)
	assert.False(t, second.PageInfo.HasMore)

	_, err = f.svc.List(ctx, domain.ListPaymentsRequest{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	mine, err := f.svc.ListByUser(ctx, "student-11", 10)
	require.NoError(t, err)
	assert.Len(t, mine, 5)
}

func TestReceiptOnlyForOwnerOfSettledPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	course := f.course(t, 5000, true)
	_, err := f.users.EnsureUser(ctx, userdomain.EnsureUserRequest{ID: "student-12", Email: "s12@example.com", Name: "Nadia"})
	require.NoError(t, err)

	f.expectCreate("TR-P")
	checkout, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: "student-12", CourseID: course.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.Receipt(ctx, "student-12", checkout.Payment.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	f.gateway.On("ExecutePayment", mock.Anything, "TR-P").Return(completed("TR-P"), nil).Once()
	_, err = f.svc.HandleCallback(ctx, domain.CallbackRequest{GatewayPaymentID: "TR-P", Status: "success"})
	require.NoError(t, err)

	receipt, err := f.svc.Receipt(ctx, "student-12", checkout.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, course.Title, receipt.CourseTitle)
	assert.Equal(t, "Nadia", receipt.PayerName)
	assert.Equal(t, "%PDF", string(receipt.Document[:4]))

	_, err = f.svc.Receipt(ctx, "someone-else", checkout.Payment.ID.String())
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	assert.Equal(t, 30*time.Second, backoff(30*time.Second, time.Hour, 1))
	assert.Equal(t, time.Minute, backoff(30*time.Second, time.Hour, 2))
	assert.Equal(t, 4*time.Minute, backoff(30*time.Second, time.Hour, 4))
	assert.Equal(t, time.Hour, backoff(30*time.Second, time.Hour, 30))
}
