package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/shikkha/internal/auth"
	obscontext "github.com/smallbiznis/shikkha/internal/observability/context"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
	"go.uber.org/zap"
)

const (
	contextUserIDKey = "user_id"
	contextRoleKey   = "user_role"
)

// AuthRequired verifies the bearer token issued by the hosted auth service and
// mirrors the caller into the users table. The stored role wins over the
// token claim once the row exists.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.BearerToken(c.GetHeader("Authorization"))
		principal, err := s.verifier.Verify(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		// Claims the users table does not know map to student.
		claimedRole := userdomain.RoleStudent
		if principal.Role == userdomain.RoleAdmin {
			claimedRole = userdomain.RoleAdmin
		}

		user, err := s.userSvc.EnsureUser(c.Request.Context(), userdomain.EnsureUserRequest{
			ID:    principal.UserID,
			Email: principal.Email,
			Name:  principal.Name,
			Role:  claimedRole,
		})
		if err != nil {
			s.log.Warn("failed to mirror authenticated user",
				zap.String("user_id", principal.UserID),
				zap.Error(err),
			)
			AbortWithError(c, err)
			return
		}
		principal.Role = user.Role

		ctx := auth.WithPrincipal(c.Request.Context(), principal)
		ctx = obscontext.WithActor(ctx, principal.Role, principal.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, principal.UserID)
		c.Set(contextRoleKey, principal.Role)
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := s.principal(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal.UserID, principal.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) principal(c *gin.Context) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok || principal.UserID == "" {
		return auth.Principal{}, false
	}
	return principal, true
}
