package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/config"
	enrollmentdomain "github.com/smallbiznis/shikkha/internal/enrollment/domain"
	"github.com/smallbiznis/shikkha/internal/observability/logger"
	"github.com/smallbiznis/shikkha/internal/observability/metrics"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"github.com/smallbiznis/shikkha/internal/providers/pdf"
	"github.com/smallbiznis/shikkha/internal/ratelimit"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
	dbpkg "github.com/smallbiznis/shikkha/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const CallbackPath = "/api/payments/bkash/callback"

// refundClaimTTL outlives the gateway client timeout.
const refundClaimTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Config      config.Config
	Settings    *config.PaymentSettingsHolder
	Repo        domain.Repository
	Grants      domain.GrantRepository
	Gateway     domain.Gateway
	Enrollments enrollmentdomain.Service
	Catalog     catalogdomain.Service
	Users       userdomain.Service
	Receipts    pdf.Renderer
	Limiter     *ratelimit.CheckoutLimiter `optional:"true"`
	Metrics     *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	settings    *config.PaymentSettingsHolder
	callbackURL string
	repo        domain.Repository
	grants      domain.GrantRepository
	gateway     domain.Gateway
	enrollments enrollmentdomain.Service
	catalog     catalogdomain.Service
	users       userdomain.Service
	receipts    pdf.Renderer
	limiter     *ratelimit.CheckoutLimiter
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		settings:    p.Settings,
		callbackURL: strings.TrimRight(p.Config.PublicURL, "/") + CallbackPath,
		repo:        p.Repo,
		grants:      p.Grants,
		gateway:     p.Gateway,
		enrollments: p.Enrollments,
		catalog:     p.Catalog,
		users:       p.Users,
		receipts:    p.Receipts,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
	}
}

func (s *Service) CreatePaymentRecord(ctx context.Context, req domain.CreateRecordRequest) (domain.PaymentRecord, error) {
	userID := strings.TrimSpace(req.UserID)
	transactionID := strings.TrimSpace(req.TransactionID)
	if userID == "" || req.CourseID == 0 || transactionID == "" {
		return domain.PaymentRecord{}, domain.ErrInvalidRequest
	}
	if req.Amount <= 0 {
		return domain.PaymentRecord{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.settings.Get().Currency
	}
	channel := strings.TrimSpace(req.PaymentChannel)
	if channel == "" {
		channel = domain.ChannelBkash
	}

	record := domain.PaymentRecord{
		ID:             s.genID.Generate(),
		UserID:         userID,
		CourseID:       req.CourseID,
		Amount:         req.Amount,
		Currency:       currency,
		PaymentChannel: channel,
		Status:         domain.StatusPending,
		TransactionID:  transactionID,
		GatewayPayload: datatypes.JSON("{}"),
		IsVerified:     false,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		if dbpkg.ViolatesConstraint(err, "ux_payments_transaction_id", "payments.transaction_id") {
			return domain.PaymentRecord{}, domain.ErrDuplicateTransaction
		}
		s.log.Error("failed to insert payment record",
			zap.String("transaction_id", transactionID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return domain.PaymentRecord{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}

	logger.WithPayment(s.log, record.ID.String(), transactionID).Info("payment record created",
		zap.String("course_id", record.CourseID.String()),
		zap.Int64("amount", record.Amount),
	)
	return record, nil
}

// Checkout starts a gateway payment for a published course and returns the
// URL the payer must be redirected to.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.CheckoutResult{}, domain.ErrInvalidRequest
	}
	course, err := s.catalog.GetCourse(ctx, req.CourseID)
	if err != nil {
		return domain.CheckoutResult{}, err
	}
	if !course.IsPublished {
		return domain.CheckoutResult{}, domain.ErrCourseNotPurchasable
	}
	enrolled, err := s.enrollments.IsEnrolled(ctx, userID, course.ID)
	if err != nil {
		return domain.CheckoutResult{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	if enrolled {
		return domain.CheckoutResult{}, domain.ErrAlreadyEnrolled
	}
	if course.PriceAmount < s.settings.Get().MinimumAmount {
		return domain.CheckoutResult{}, domain.NewMinimumAmountError()
	}
	if ok, retryAfter := s.limiter.Allow(ctx, userID); !ok {
		s.metrics.RecordRateLimitDenied(ctx, "checkout", "user_bucket")
		return domain.CheckoutResult{}, &domain.RateLimitError{RetryAfter: retryAfter}
	}

	record, err := s.CreatePaymentRecord(ctx, domain.CreateRecordRequest{
		UserID:         userID,
		CourseID:       course.ID,
		Amount:         course.PriceAmount,
		Currency:       course.Currency,
		PaymentChannel: domain.ChannelBkash,
		TransactionID:  ulid.Make().String(),
	})
	if err != nil {
		return domain.CheckoutResult{}, err
	}
	log := logger.WithPayment(s.log, record.ID.String(), record.TransactionID)

	created, err := s.gateway.CreatePayment(ctx, domain.CreatePaymentRequest{
		Amount:                record.Amount,
		Currency:              record.Currency,
		PayerReference:        userID,
		CallbackURL:           s.callbackURL,
		MerchantInvoiceNumber: record.TransactionID,
	})
	if err != nil {
		log.Warn("gateway create payment failed", zap.Error(err))
		if _, markErr := s.ProcessFailedPayment(ctx, record.ID, domain.FailureReasonGateway, nil); markErr != nil {
			log.Error("failed to mark payment failed", zap.Error(markErr))
		}
		return domain.CheckoutResult{}, err
	}

	ok, err := s.repo.AttachGateway(ctx, s.db, record.ID, domain.GatewayUpdate{
		GatewayPaymentID: created.PaymentID,
		GatewayURL:       created.RedirectURL,
		Payload:          datatypes.JSON(created.Raw),
	}, s.clock.Now())
	if err != nil {
		log.Error("failed to attach gateway payment", zap.String("gateway_payment_id", created.PaymentID), zap.Error(err))
		return domain.CheckoutResult{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	if !ok {
		return domain.CheckoutResult{}, domain.ErrInvalidTransition
	}

	stored, err := s.load(ctx, s.db, record.ID)
	if err != nil {
		return domain.CheckoutResult{}, err
	}
	log.Info("checkout started", zap.String("gateway_payment_id", created.PaymentID))
	return domain.CheckoutResult{Payment: *stored, RedirectURL: created.RedirectURL}, nil
}

// HandleCallback applies the payer's return from the gateway. Transport
// errors during execute leave the record pending for reconciliation.
func (s *Service) HandleCallback(ctx context.Context, req domain.CallbackRequest) (domain.CallbackResult, error) {
	gatewayPaymentID := strings.TrimSpace(req.GatewayPaymentID)
	if gatewayPaymentID == "" {
		return domain.CallbackResult{}, domain.ErrInvalidRequest
	}
	record, err := s.repo.FindByGatewayPaymentID(ctx, s.db, gatewayPaymentID)
	if err != nil {
		return domain.CallbackResult{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	if record == nil {
		return domain.CallbackResult{}, domain.ErrPaymentNotFound
	}
	if record.IsTerminal() {
		return domain.CallbackResult{Payment: *record}, domain.ErrAlreadyProcessed
	}
	log := logger.WithPayment(s.log, record.ID.String(), record.TransactionID)

	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case domain.CallbackStatusSuccess:
	case domain.CallbackStatusCancel:
		failed, err := s.ProcessFailedPayment(ctx, record.ID, domain.FailureReasonCancelled, nil)
		return domain.CallbackResult{Payment: failed}, err
	default:
		failed, err := s.ProcessFailedPayment(ctx, record.ID, domain.FailureReasonDeclined, nil)
		return domain.CallbackResult{Payment: failed}, err
	}

	executed, err := s.gateway.ExecutePayment(ctx, gatewayPaymentID)
	if err != nil {
		log.Error("execute payment failed; leaving pending for reconciliation", zap.Error(err))
		return domain.CallbackResult{Payment: *record}, err
	}
	if !executed.Completed() && executed.StatusCode != domain.StatusCodeSuccess {
		// Execute refuses a payment that was already executed, for example when
		// the first response was lost and the payer replays the callback. The
		// status query is authoritative for whether the funds were captured.
		confirmed, err := s.gateway.QueryPayment(ctx, gatewayPaymentID)
		if err != nil {
			log.Error("payment status query failed; leaving pending for reconciliation",
				zap.String("execute_status_code", executed.StatusCode),
				zap.Error(err),
			)
			return domain.CallbackResult{Payment: *record}, err
		}
		if confirmed.Completed() {
			log.Info("execute rejected but gateway reports completed",
				zap.String("execute_status_code", executed.StatusCode),
			)
			executed = confirmed
		}
	}
	return s.applyGatewayResult(ctx, record, executed)
}

func (s *Service) applyGatewayResult(ctx context.Context, record *domain.PaymentRecord, result *domain.GatewayPayment) (domain.CallbackResult, error) {
	if !result.Completed() {
		failed, err := s.ProcessFailedPayment(ctx, record.ID, domain.FailureReasonDeclined, result.Raw)
		return domain.CallbackResult{Payment: failed}, err
	}
	if paid, err := domain.ParseAmount(result.Amount); err == nil && paid != record.Amount {
		logger.WithPayment(s.log, record.ID.String(), record.TransactionID).Warn("gateway amount differs from record",
			zap.Int64("expected", record.Amount),
			zap.Int64("paid", paid),
		)
	}

	paid, enrolled, err := s.ProcessSuccessfulPayment(ctx, domain.SuccessRequest{
		PaymentID:        record.ID,
		GatewayPaymentID: result.PaymentID,
		GatewayTrxID:     result.TrxID,
		Payload:          result.Raw,
	})
	return domain.CallbackResult{Payment: paid, Enrolled: enrolled}, err
}

// ProcessSuccessfulPayment marks the record successful and queues the
// enrollment in one transaction, then tries the enrollment right away. An
// enrollment failure never reverts the payment; the grant is retried later.
func (s *Service) ProcessSuccessfulPayment(ctx context.Context, req domain.SuccessRequest) (domain.PaymentRecord, bool, error) {
	now := s.clock.Now()
	var grant domain.EnrollmentGrant

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.load(ctx, tx, req.PaymentID)
		if err != nil {
			return err
		}
		if err := pendingOrErr(record, domain.StatusSuccessful); err != nil {
			return err
		}

		ok, err := s.repo.MarkSuccessful(ctx, tx, record.ID, domain.GatewayUpdate{
			GatewayPaymentID: req.GatewayPaymentID,
			GatewayTrxID:     req.GatewayTrxID,
			Payload:          datatypes.JSON(req.Payload),
		}, now)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrDatabase, err)
		}
		if !ok {
			return domain.ErrAlreadyProcessed
		}

		grant = domain.EnrollmentGrant{
			ID:            s.genID.Generate(),
			PaymentID:     record.ID,
			UserID:        record.UserID,
			CourseID:      record.CourseID,
			Status:        domain.GrantStatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := s.grants.Insert(ctx, tx, &grant); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrDatabase, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyProcessed) {
			s.log.Error("failed to mark payment successful", zap.String("payment_id", req.PaymentID.String()), zap.Error(err))
		}
		return domain.PaymentRecord{}, false, err
	}
	s.metrics.RecordPaymentTransition(ctx, domain.StatusPending, domain.StatusSuccessful)

	enrolled := s.fulfil(ctx, &grant)
	stored, err := s.load(ctx, s.db, req.PaymentID)
	if err != nil {
		return domain.PaymentRecord{}, enrolled, err
	}
	logger.WithPayment(s.log, stored.ID.String(), stored.TransactionID).Info("payment successful",
		zap.Bool("enrolled", enrolled),
	)
	return *stored, enrolled, nil
}

func (s *Service) ProcessFailedPayment(ctx context.Context, paymentID snowflake.ID, reason string, payload []byte) (domain.PaymentRecord, error) {
	record, err := s.load(ctx, s.db, paymentID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if err := pendingOrErr(record, domain.StatusFailed); err != nil {
		return *record, err
	}

	ok, err := s.repo.MarkFailed(ctx, s.db, record.ID, reason, datatypes.JSON(payload), s.clock.Now())
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	if !ok {
		return *record, domain.ErrAlreadyProcessed
	}
	s.metrics.RecordPaymentTransition(ctx, domain.StatusPending, domain.StatusFailed)

	stored, err := s.load(ctx, s.db, record.ID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	logger.WithPayment(s.log, stored.ID.String(), stored.TransactionID).Info("payment failed", zap.String("reason", reason))
	return *stored, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundPaymentRequest) (domain.PaymentRecord, error) {
	id, err := parseID(req.PaymentID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	record, err := s.load(ctx, s.db, id)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if record.Status != domain.StatusSuccessful || record.GatewayPaymentID == nil || record.GatewayTrxID == nil {
		return domain.PaymentRecord{}, domain.ErrInvalidTransition
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "refund"
	}

	// Claim the row before calling the gateway so concurrent refunds reach
	// bKash at most once. A claim older than refundClaimTTL is considered
	// abandoned by a crashed request.
	now := s.clock.Now()
	claimed, err := s.repo.ClaimRefund(ctx, s.db, record.ID, now, now.Add(-refundClaimTTL))
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	if !claimed {
		return domain.PaymentRecord{}, domain.ErrRefundInProgress
	}

	refund, err := s.gateway.RefundPayment(ctx, domain.RefundRequest{
		PaymentID: *record.GatewayPaymentID,
		TrxID:     *record.GatewayTrxID,
		Amount:    record.Amount,
		SKU:       record.CourseID.String(),
		Reason:    reason,
	})
	if err != nil {
		log := logger.WithPayment(s.log, record.ID.String(), record.TransactionID)
		log.Error("gateway refund failed", zap.Error(err))
		if releaseErr := s.repo.ReleaseRefundClaim(context.WithoutCancel(ctx), s.db, record.ID); releaseErr != nil {
			log.Warn("failed to release refund claim", zap.Error(releaseErr))
		}
		return domain.PaymentRecord{}, err
	}

	ok, err := s.repo.MarkRefunded(ctx, s.db, record.ID, datatypes.JSON(refund.Raw), s.clock.Now())
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	if !ok {
		return domain.PaymentRecord{}, domain.ErrInvalidTransition
	}
	s.metrics.RecordPaymentTransition(ctx, domain.StatusSuccessful, domain.StatusRefunded)

	stored, err := s.load(ctx, s.db, record.ID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	logger.WithPayment(s.log, stored.ID.String(), stored.TransactionID).Info("payment refunded",
		zap.String("refund_trx_id", refund.RefundTrxID),
	)
	return *stored, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentRecord, error) {
	record, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	if record == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return record, nil
}

// pendingOrErr reports how a non-pending record relates to the requested
// target status.
func pendingOrErr(record *domain.PaymentRecord, target string) error {
	switch {
	case record.Status == domain.StatusPending:
		return nil
	case record.Status == target:
		return domain.ErrAlreadyProcessed
	default:
		return domain.ErrInvalidTransition
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrPaymentNotFound
	}
	return id, nil
}

func backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
