package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/shikkha/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	paymentResultSuccess = "success"
	paymentResultFailed  = "failed"
)

type checkoutRequest struct {
	CourseID string `json:"course_id"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) Checkout(c *gin.Context) {
	principal, ok := s.principal(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	courseID := strings.TrimSpace(req.CourseID)
	if courseID == "" {
		AbortWithError(c, newValidationError("course_id", "required", "course_id is required"))
		return
	}
	c.Set("course_id", courseID)

	resp, err := s.paymentSvc.Checkout(c.Request.Context(), paymentdomain.CheckoutRequest{
		UserID:   principal.UserID,
		CourseID: courseID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// BkashCallback settles the payment named by the gateway redirect and sends
// the browser on to the storefront result page.
func (s *Server) BkashCallback(c *gin.Context) {
	result, err := s.paymentSvc.HandleCallback(c.Request.Context(), paymentdomain.CallbackRequest{
		GatewayPaymentID: c.Query("paymentID"),
		Status:           c.Query("status"),
	})

	outcome := paymentResultFailed
	switch {
	case err == nil && result.Payment.Status == paymentdomain.StatusSuccessful:
		outcome = paymentResultSuccess
	case errors.Is(err, paymentdomain.ErrAlreadyProcessed):
		if result.Payment.Status == paymentdomain.StatusSuccessful {
			outcome = paymentResultSuccess
		}
	case err != nil:
		s.log.Warn("bkash callback not settled",
			zap.String("gateway_payment_id", c.Query("paymentID")),
			zap.String("status", c.Query("status")),
			zap.Error(err),
		)
	}

	c.Redirect(http.StatusFound, s.paymentResultURL(outcome, result.Payment.TransactionID))
}

func (s *Server) paymentResultURL(outcome, transactionID string) string {
	base := strings.TrimRight(s.cfg.FrontendURL, "/")
	target := fmt.Sprintf("%s/payment/%s", base, outcome)
	if transactionID == "" {
		return target
	}
	return target + "?" + url.Values{"transaction_id": []string{transactionID}}.Encode()
}

func (s *Server) ListMyPayments(c *gin.Context) {
	principal, ok := s.principal(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	limit, _, err := parseLimitOffset(c.Query("limit"), "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.ListByUser(c.Request.Context(), principal.UserID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	principal, ok := s.principal(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	receipt, err := s.paymentSvc.Receipt(c.Request.Context(), principal.UserID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("receipt-%s.pdf", receipt.Payment.TransactionID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", receipt.Document)
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		Status    string `form:"status"`
		UserID    string `form:"user_id"`
		CourseID  string `form:"course_id"`
		PageToken string `form:"page_token"`
		PageSize  int    `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentsRequest{
		Status:    strings.TrimSpace(query.Status),
		UserID:    strings.TrimSpace(query.UserID),
		CourseID:  strings.TrimSpace(query.CourseID),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayment(c *gin.Context) {
	resp, err := s.paymentSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundPaymentRequest{
		PaymentID: strings.TrimSpace(c.Param("id")),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
