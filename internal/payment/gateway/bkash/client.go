package bkash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/shikkha/internal/config"
	"github.com/smallbiznis/shikkha/internal/observability/metrics"
	"github.com/smallbiznis/shikkha/internal/observability/tracing"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"github.com/smallbiznis/shikkha/internal/payment/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pathGrant   = "/tokenized/checkout/token/grant"
	pathCreate  = "/tokenized/checkout/create"
	pathExecute = "/tokenized/checkout/execute"
	pathQuery   = "/tokenized/checkout/payment/status"
	pathRefund  = "/tokenized/checkout/payment/refund"

	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

var tracer = otel.Tracer("shikkha/bkash")

type Options struct {
	BaseURL   string
	Username  string
	Password  string
	AppKey    string
	AppSecret string
	Timeout   time.Duration
}

type Params struct {
	fx.In

	Config   config.Config
	Settings *config.PaymentSettingsHolder
	Tokens   *token.Cache
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

// Client talks to the bKash tokenized checkout REST API.
type Client struct {
	opts     Options
	http     *http.Client
	tokens   *token.Cache
	settings *config.PaymentSettingsHolder
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(p Params) domain.Gateway {
	return NewClient(Options{
		BaseURL:   p.Config.Bkash.BaseURL,
		Username:  p.Config.Bkash.Username,
		Password:  p.Config.Bkash.Password,
		AppKey:    p.Config.Bkash.AppKey,
		AppSecret: p.Config.Bkash.AppSecret,
		Timeout:   p.Config.Bkash.Timeout,
	}, p.Tokens, p.Settings, p.Log, p.Metrics)
}

func NewClient(opts Options, tokens *token.Cache, settings *config.PaymentSettingsHolder, log *zap.Logger, m *metrics.Metrics) *Client {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Client{
		opts:     opts,
		http:     &http.Client{Timeout: opts.Timeout},
		tokens:   tokens,
		settings: settings,
		log:      log.Named("payment.bkash"),
		metrics:  m,
	}
}

// Token returns a cached id_token, granting a new one when needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Get(ctx, domain.ProviderBkash, c.grant)
}

func (c *Client) grant(ctx context.Context) (*domain.CachedToken, error) {
	headers := http.Header{}
	headers.Set("username", c.opts.Username)
	headers.Set("password", c.opts.Password)

	var resp grantResponse
	_, err := c.do(ctx, "grant", pathGrant, headers, grantRequest{
		AppKey:    c.opts.AppKey,
		AppSecret: c.opts.AppSecret,
	}, &resp)
	if err != nil {
		return nil, err
	}
	code := resp.code()
	if resp.IDToken == "" || (code != "" && code != domain.StatusCodeSuccess) {
		return nil, &domain.StatusError{Code: code, Message: resp.message(), Err: domain.ErrGateway}
	}
	return &domain.CachedToken{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn.Int64(),
	}, nil
}

// CreatePayment validates locally before touching the network: a sub-minimum
// amount or a missing callback never fetches a token.
func (c *Client) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	settings := c.settings.Get()
	if req.Amount < settings.MinimumAmount {
		return nil, domain.NewMinimumAmountError()
	}
	if strings.TrimSpace(req.CallbackURL) == "" {
		return nil, domain.ErrMissingCallback
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = settings.Currency
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var resp createResponse
	raw, err := c.do(ctx, "create", pathCreate, headers, createRequest{
		Mode:                  settings.Mode,
		PayerReference:        req.PayerReference,
		CallbackURL:           req.CallbackURL,
		Amount:                domain.FormatAmount(req.Amount),
		Currency:              currency,
		Intent:                settings.Intent,
		MerchantInvoiceNumber: req.MerchantInvoiceNumber,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if code := resp.code(); code != domain.StatusCodeSuccess || resp.PaymentID == "" {
		c.log.Warn("bkash create payment rejected",
			zap.String("status_code", code),
			zap.String("status_message", resp.message()),
			zap.String("merchant_invoice_number", req.MerchantInvoiceNumber),
		)
		return nil, &domain.StatusError{Code: code, Message: resp.message(), Err: domain.ErrGateway}
	}

	return &domain.CreatePaymentResponse{
		PaymentID:         resp.PaymentID,
		RedirectURL:       resp.BkashURL,
		TransactionStatus: resp.TransactionStatus,
		StatusCode:        resp.code(),
		StatusMessage:     resp.message(),
		Raw:               raw,
	}, nil
}

// ExecutePayment returns the gateway view even when the payment was
// declined; only transport and protocol failures are errors.
func (c *Client) ExecutePayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	return c.paymentCall(ctx, "execute", pathExecute, paymentID)
}

func (c *Client) QueryPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	return c.paymentCall(ctx, "query", pathQuery, paymentID)
}

func (c *Client) paymentCall(ctx context.Context, operation, path, paymentID string) (*domain.GatewayPayment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, domain.ErrInvalidRequest
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var resp paymentResponse
	raw, err := c.do(ctx, operation, path, headers, paymentIDRequest{PaymentID: paymentID}, &resp)
	if err != nil {
		c.log.Error("bkash payment call failed",
			zap.String("operation", operation),
			zap.String("gateway_payment_id", paymentID),
			zap.Error(err),
		)
		return nil, err
	}

	result := &domain.GatewayPayment{
		PaymentID:             firstNonEmpty(resp.PaymentID, paymentID),
		TrxID:                 resp.TrxID,
		TransactionStatus:     resp.TransactionStatus,
		Amount:                resp.Amount,
		Currency:              resp.Currency,
		MerchantInvoiceNumber: resp.MerchantInvoiceNumber,
		StatusCode:            resp.code(),
		StatusMessage:         resp.message(),
		Raw:                   raw,
	}
	if !result.Completed() {
		c.log.Info("bkash payment not completed",
			zap.String("operation", operation),
			zap.String("gateway_payment_id", paymentID),
			zap.String("status_code", result.StatusCode),
			zap.String("transaction_status", result.TransactionStatus),
		)
	}
	return result, nil
}

func (c *Client) RefundPayment(ctx context.Context, req domain.RefundRequest) (*domain.RefundResponse, error) {
	if strings.TrimSpace(req.PaymentID) == "" || strings.TrimSpace(req.TrxID) == "" {
		return nil, domain.ErrInvalidRequest
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var resp refundResponse
	raw, err := c.do(ctx, "refund", pathRefund, headers, refundRequest{
		PaymentID: req.PaymentID,
		Amount:    domain.FormatAmount(req.Amount),
		TrxID:     req.TrxID,
		SKU:       req.SKU,
		Reason:    req.Reason,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if code := resp.code(); code != domain.StatusCodeSuccess {
		return nil, &domain.StatusError{Code: code, Message: resp.message(), Err: domain.ErrGateway}
	}
	return &domain.RefundResponse{
		OriginalTrxID:     resp.OriginalTrxID,
		RefundTrxID:       resp.RefundTrxID,
		TransactionStatus: resp.TransactionStatus,
		Amount:            resp.Amount,
		StatusCode:        resp.code(),
		StatusMessage:     resp.message(),
		Raw:               raw,
	}, nil
}

func (c *Client) authHeaders(ctx context.Context) (http.Header, error) {
	idToken, err := c.Token(ctx)
	if err != nil {
		c.log.Error("bkash token unavailable", zap.Error(err))
		if errors.Is(err, domain.ErrTokenUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTokenUnavailable, err)
	}
	headers := http.Header{}
	headers.Set("Authorization", idToken)
	headers.Set("X-APP-Key", c.opts.AppKey)
	return headers, nil
}

// do posts body as JSON and decodes the response into out. It returns the raw
// response bytes for storage on the payment record.
func (c *Client) do(ctx context.Context, operation, path string, headers http.Header, body, out any) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "bkash."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.SafeAttributes(
			attribute.String("http.method", http.MethodPost),
			attribute.String("url.path", path),
			attribute.String("payment.provider", domain.ProviderBkash),
		)...),
	)
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		c.metrics.RecordGatewayCall(ctx, domain.ProviderBkash, operation, outcome, time.Since(start))
	}()

	if c.opts.BaseURL == "" {
		return nil, &domain.StatusError{Message: "gateway base url not configured", Err: domain.ErrGateway}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "transport")
		return nil, &domain.StatusError{Message: err.Error(), Err: domain.ErrGateway}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		span.SetStatus(codes.Error, "read body")
		return nil, &domain.StatusError{Message: err.Error(), Err: domain.ErrGateway}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
		var failure envelope
		_ = json.Unmarshal(raw, &failure)
		msg := failure.message()
		if msg == "" {
			msg = resp.Status
		}
		return raw, &domain.StatusError{Code: failure.code(), Message: msg, Err: domain.ErrGateway}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		span.SetStatus(codes.Error, "decode")
		return raw, &domain.StatusError{Message: "invalid gateway response", Err: domain.ErrGateway}
	}

	outcome = "ok"
	return raw, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
