package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	enrollmentdomain "github.com/smallbiznis/shikkha/internal/enrollment/domain"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"github.com/smallbiznis/shikkha/internal/providers/pdf"
	"github.com/smallbiznis/shikkha/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Service) Get(ctx context.Context, id string) (domain.PaymentRecord, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	record, err := s.load(ctx, s.db, paymentID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return *record, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]domain.PaymentRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidRequest
	}
	rows, err := s.repo.List(ctx, s.db, domain.ListFilter{
		UserID: userID,
		Limit:  pagination.PageSize(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}
	return derefAll(rows), nil
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentsRequest) (domain.ListPaymentsResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != "" && !validStatus(status) {
		return domain.ListPaymentsResponse{}, domain.ErrInvalidRequest
	}

	filter := domain.ListFilter{
		Status: status,
		UserID: strings.TrimSpace(req.UserID),
	}
	if courseID := strings.TrimSpace(req.CourseID); courseID != "" {
		id, err := snowflake.ParseString(courseID)
		if err != nil {
			return domain.ListPaymentsResponse{}, domain.ErrInvalidRequest
		}
		filter.CourseID = id
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListPaymentsResponse{}, err
	}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListPaymentsResponse{}, pagination.ErrInvalidPageToken
		}
		filter.BeforeID = id
	}

	pageSize := pagination.PageSize(req.PageSize)
	filter.Limit = pageSize + 1

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListPaymentsResponse{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}

	page, info, err := pagination.Trim(derefAll(rows), pageSize, func(p domain.PaymentRecord) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String(), CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})
	if err != nil {
		return domain.ListPaymentsResponse{}, err
	}
	return domain.ListPaymentsResponse{Payments: page, PageInfo: info}, nil
}

// Receipt renders a PDF for one of the caller's own settled payments.
func (s *Service) Receipt(ctx context.Context, userID, paymentID string) (domain.Receipt, error) {
	record, err := s.Get(ctx, paymentID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if record.UserID != strings.TrimSpace(userID) {
		return domain.Receipt{}, domain.ErrPaymentNotFound
	}
	if record.Status != domain.StatusSuccessful && record.Status != domain.StatusRefunded {
		return domain.Receipt{}, domain.ErrInvalidTransition
	}

	receipt := domain.Receipt{
		Payment:     record,
		CourseTitle: "Course " + record.CourseID.String(),
	}
	if course, err := s.catalog.GetCourse(ctx, record.CourseID.String()); err == nil {
		receipt.CourseTitle = course.Title
	}
	if user, err := s.users.GetByID(ctx, record.UserID); err == nil {
		receipt.PayerName = user.Name
		receipt.PayerEmail = user.Email
	}

	data := pdf.ReceiptData{
		ReceiptNumber: record.ID.String(),
		TransactionID: record.TransactionID,
		Channel:       record.PaymentChannel,
		Status:        record.Status,
		PayerName:     receipt.PayerName,
		PayerEmail:    receipt.PayerEmail,
		CourseTitle:   receipt.CourseTitle,
		Amount:        domain.FormatAmount(record.Amount),
		Currency:      record.Currency,
	}
	if record.GatewayTrxID != nil {
		data.GatewayTrxID = *record.GatewayTrxID
	}
	if record.PaidAt != nil {
		data.PaidAt = record.PaidAt.UTC().Format("2006-01-02 15:04 MST")
	}

	doc, err := s.receipts.RenderReceipt(ctx, data)
	if err != nil {
		s.log.Error("failed to render receipt", zap.String("payment_id", record.ID.String()), zap.Error(err))
		return domain.Receipt{}, err
	}
	receipt.Document = doc
	return receipt, nil
}

// Reconcile settles pending payments whose callback never arrived. A
// completed gateway status always wins over abandonment.
func (s *Service) Reconcile(ctx context.Context, limit int) (domain.ReconcileResult, error) {
	settings := s.settings.Get()
	now := s.clock.Now()
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}

	pending, err := s.repo.ListPendingBefore(ctx, s.db, now.Add(-settings.ReconcileAfter), limit)
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}

	var result domain.ReconcileResult
	var errs []error
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result.Checked++
		abandoned := now.Sub(record.CreatedAt) >= settings.AbandonAfter

		if record.GatewayPaymentID == nil {
			s.settle(ctx, &result, &errs, record, domain.FailureReasonAbandoned, nil)
			continue
		}

		status, err := s.gateway.QueryPayment(ctx, *record.GatewayPaymentID)
		if err != nil {
			if abandoned {
				s.settle(ctx, &result, &errs, record, domain.FailureReasonAbandoned, nil)
				continue
			}
			result.Skipped++
			errs = append(errs, err)
			continue
		}

		switch {
		case status.Completed():
			_, _, err := s.ProcessSuccessfulPayment(ctx, domain.SuccessRequest{
				PaymentID:        record.ID,
				GatewayPaymentID: status.PaymentID,
				GatewayTrxID:     status.TrxID,
				Payload:          status.Raw,
			})
			switch {
			case err == nil:
				result.Successful++
			case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrInvalidTransition):
				result.Skipped++
			default:
				result.Skipped++
				errs = append(errs, err)
			}
		case gatewayDeclined(status):
			s.settle(ctx, &result, &errs, record, domain.FailureReasonDeclined, status.Raw)
		case abandoned:
			s.settle(ctx, &result, &errs, record, domain.FailureReasonAbandoned, status.Raw)
		default:
			result.Skipped++
		}
	}

	if result.Checked > 0 {
		s.log.Info("payments reconciled",
			zap.Int("checked", result.Checked),
			zap.Int("successful", result.Successful),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}
	return result, errors.Join(errs...)
}

func (s *Service) settle(ctx context.Context, result *domain.ReconcileResult, errs *[]error, record *domain.PaymentRecord, reason string, payload []byte) {
	_, err := s.ProcessFailedPayment(ctx, record.ID, reason, payload)
	switch {
	case err == nil:
		result.Failed++
	case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrInvalidTransition):
		result.Skipped++
	default:
		result.Skipped++
		*errs = append(*errs, err)
	}
}

func gatewayDeclined(status *domain.GatewayPayment) bool {
	switch strings.ToLower(status.TransactionStatus) {
	case "failed", "cancelled", "expired", "declined":
		return true
	}
	return false
}

// ProcessDueGrants retries enrollment for successful payments whose
// enrollment was not written yet.
func (s *Service) ProcessDueGrants(ctx context.Context, limit int) (domain.GrantResult, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	due, err := s.grants.ListDue(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return domain.GrantResult{}, fmt.Errorf("%w: %w", domain.ErrDatabase, err)
	}

	var result domain.GrantResult
	for _, grant := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		if s.fulfil(ctx, grant) {
			result.Enrolled++
		} else {
			result.Retried++
		}
	}
	return result, nil
}

// fulfil writes the enrollment for a grant and records the outcome on the
// grant row. It reports whether the learner is now enrolled.
func (s *Service) fulfil(ctx context.Context, grant *domain.EnrollmentGrant) bool {
	paymentID := grant.PaymentID
	log := s.log.With(
		zap.String("payment_id", paymentID.String()),
		zap.String("user_id", grant.UserID),
		zap.String("course_id", grant.CourseID.String()),
	)

	_, err := s.enrollments.Enroll(ctx, enrollmentdomain.EnrollRequest{
		UserID:    grant.UserID,
		CourseID:  grant.CourseID,
		Source:    enrollmentdomain.SourcePayment,
		PaymentID: &paymentID,
	})
	now := s.clock.Now()
	if err == nil {
		if markErr := s.grants.MarkDone(ctx, s.db, grant.ID, now); markErr != nil {
			log.Error("failed to mark enrollment grant done", zap.Error(markErr))
		}
		return true
	}

	settings := s.settings.Get()
	attempts := grant.Attempts + 1
	next := now.Add(backoff(settings.GrantRetryBase, settings.GrantRetryMax, attempts))
	if markErr := s.grants.MarkRetry(ctx, s.db, grant.ID, attempts, err.Error(), next, now); markErr != nil {
		log.Error("failed to reschedule enrollment grant", zap.Error(markErr))
	}
	if settings.GrantMaxAttempts > 0 && attempts >= settings.GrantMaxAttempts {
		log.Error("enrollment grant keeps failing", zap.Int("attempts", attempts), zap.Error(err))
	} else {
		log.Warn("enrollment deferred", zap.Int("attempts", attempts), zap.Time("next_attempt_at", next), zap.Error(err))
	}
	return false
}

func validStatus(status string) bool {
	switch status {
	case domain.StatusPending, domain.StatusSuccessful, domain.StatusFailed, domain.StatusRefunded:
		return true
	}
	return false
}

func derefAll(rows []*domain.PaymentRecord) []domain.PaymentRecord {
	out := make([]domain.PaymentRecord, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	return out
}
