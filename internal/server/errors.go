package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/shikkha/internal/auth"
	"github.com/smallbiznis/shikkha/internal/authorization"
	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	enrollmentdomain "github.com/smallbiznis/shikkha/internal/enrollment/domain"
	paymentdomain "github.com/smallbiznis/shikkha/internal/payment/domain"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
	"github.com/smallbiznis/shikkha/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// gatewayStatusResponse mirrors the gateway's own error body for status
// codes the storefront already knows how to render.
type gatewayStatusResponse struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		var statusErr *paymentdomain.StatusError
		if errors.As(lastErr.Err, &statusErr) && statusErr.Code == paymentdomain.StatusCodeMinimumAmount {
			c.AbortWithStatusJSON(http.StatusBadRequest, gatewayStatusResponse{
				StatusCode:    statusErr.Code,
				StatusMessage: statusErr.Message,
			})
			return
		}

		status, payload := mapError(lastErr.Err)
		var limited *paymentdomain.RateLimitError
		if errors.As(lastErr.Err, &limited) && limited.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrAlreadyEnrolled):
		return http.StatusConflict, errorPayload{
			Type:    "already_enrolled",
			Message: "already enrolled in this course",
		}
	case errors.Is(err, paymentdomain.ErrAlreadyProcessed),
		errors.Is(err, paymentdomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_payment_state",
			Message: "payment is not in a state that allows this action",
		}
	case errors.Is(err, paymentdomain.ErrRefundInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "refund_in_progress",
			Message: "a refund for this payment is already in progress",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrDuplicateTransaction):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, paymentdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many checkout attempts",
		}
	case errors.Is(err, paymentdomain.ErrGateway):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway error",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrTokenUnavailable),
		errors.Is(err, auth.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and a stable code for the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	var statusErr *paymentdomain.StatusError
	if errors.As(err, &statusErr) && statusErr.Code != "" {
		return "gateway_status", statusErr.Code
	}
	if errors.Is(err, paymentdomain.ErrDatabase) {
		return "internal_error", paymentdomain.ErrDatabase.Error()
	}
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, paymentdomain.ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrCourseNotPurchasable):
		return true
	case isCatalogValidationError(err),
		isEnrollmentValidationError(err),
		isUserValidationError(err):
		return true
	default:
		return false
	}
}

func isCatalogValidationError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrInvalidID),
		errors.Is(err, catalogdomain.ErrInvalidTitle),
		errors.Is(err, catalogdomain.ErrInvalidPrice),
		errors.Is(err, catalogdomain.ErrInvalidCurrency),
		errors.Is(err, catalogdomain.ErrInvalidURL),
		errors.Is(err, catalogdomain.ErrInvalidKind):
		return true
	default:
		return false
	}
}

func isEnrollmentValidationError(err error) bool {
	return errors.Is(err, enrollmentdomain.ErrInvalidUser) ||
		errors.Is(err, enrollmentdomain.ErrInvalidCourse) ||
		errors.Is(err, enrollmentdomain.ErrInvalidSource)
}

func isUserValidationError(err error) bool {
	return errors.Is(err, userdomain.ErrInvalidID) ||
		errors.Is(err, userdomain.ErrInvalidRole)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrModuleNotFound),
		errors.Is(err, catalogdomain.ErrLessonNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	case errors.Is(err, paymentdomain.ErrInvalidAmount):
		return paymentdomain.ErrInvalidAmount.Error()
	case errors.Is(err, paymentdomain.ErrCourseNotPurchasable):
		return paymentdomain.ErrCourseNotPurchasable.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == paymentdomain.ErrCourseNotPurchasable.Error() {
		return "course_id"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case paymentdomain.ErrCourseNotPurchasable.Error():
		return "course is not available for purchase"
	default:
		return "invalid value"
	}
}
