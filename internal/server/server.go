package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/shikkha/internal/auth"
	"github.com/smallbiznis/shikkha/internal/authorization"
	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	"github.com/smallbiznis/shikkha/internal/config"
	enrollmentdomain "github.com/smallbiznis/shikkha/internal/enrollment/domain"
	"github.com/smallbiznis/shikkha/internal/observability"
	obsmiddleware "github.com/smallbiznis/shikkha/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/shikkha/internal/observability/metrics"
	obstracing "github.com/smallbiznis/shikkha/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/shikkha/internal/payment/domain"
	paymentservice "github.com/smallbiznis/shikkha/internal/payment/service"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     []string{"/health", "/metrics"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	verifier      *auth.Verifier
	authzSvc      authorization.Service
	userSvc       userdomain.Service
	catalogSvc    catalogdomain.Service
	enrollmentSvc enrollmentdomain.Service
	paymentSvc    paymentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Verifier      *auth.Verifier
	AuthzSvc      authorization.Service
	UserSvc       userdomain.Service
	CatalogSvc    catalogdomain.Service
	EnrollmentSvc enrollmentdomain.Service
	PaymentSvc    paymentdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		verifier:      p.Verifier,
		authzSvc:      p.AuthzSvc,
		userSvc:       p.UserSvc,
		catalogSvc:    p.CatalogSvc,
		enrollmentSvc: p.EnrollmentSvc,
		paymentSvc:    p.PaymentSvc,
	}

	svc.registerPublicRoutes()
	svc.registerStudentRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.GET("/courses", s.ListCourses)
	api.GET("/courses/:slug", s.GetCourse)

	// The gateway redirects the payer's browser here, so it carries no token.
	s.engine.GET(paymentservice.CallbackPath, s.BkashCallback)
}

func (s *Server) registerStudentRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.POST("/checkout", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCheckout), s.Checkout)
	api.GET("/courses/:slug/lessons/:id", s.authorize(authorization.ObjectLesson, authorization.ActionLessonView), s.GetLesson)

	me := api.Group("/me")
	{
		me.GET("", s.Me)
		me.GET("/enrollments", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentView), s.ListMyEnrollments)
		me.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListMyPayments)
		me.GET("/payments/:id/receipt", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.DownloadReceipt)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired())

	// -------- Courses --------
	admin.GET("/courses", s.authorize(authorization.ObjectCourse, authorization.ActionCourseUpdate), s.AdminListCourses)
	admin.POST("/courses", s.authorize(authorization.ObjectCourse, authorization.ActionCourseCreate), s.CreateCourse)
	admin.PATCH("/courses/:id", s.authorize(authorization.ObjectCourse, authorization.ActionCourseUpdate), s.UpdateCourse)
	admin.POST("/courses/:id/modules", s.authorize(authorization.ObjectCourse, authorization.ActionCourseUpdate), s.CreateModule)
	admin.POST("/courses/:id/resources", s.authorize(authorization.ObjectCourse, authorization.ActionCourseUpdate), s.CreateResource)
	admin.POST("/courses/:id/recordings", s.authorize(authorization.ObjectCourse, authorization.ActionCourseUpdate), s.CreateRecording)
	admin.GET("/courses/:id/enrollments", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentViewAll), s.ListCourseEnrollments)
	admin.POST("/modules/:id/lessons", s.authorize(authorization.ObjectCourse, authorization.ActionCourseUpdate), s.CreateLesson)

	// -------- Enrollments --------
	admin.POST("/enrollments", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentCreate), s.CreateEnrollment)

	// -------- Payments --------
	admin.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentViewAll), s.ListPayments)
	admin.GET("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentViewAll), s.GetPayment)
	admin.POST("/payments/:id/refund", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRefund), s.RefundPayment)

	// -------- Users --------
	admin.GET("/users", s.authorize(authorization.ObjectUser, authorization.ActionUserView), s.ListUsers)
	admin.PATCH("/users/:id/role", s.authorize(authorization.ObjectUser, authorization.ActionUserUpdate), s.SetUserRole)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
