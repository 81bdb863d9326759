package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medinet/federation-api/internal/handler"
	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/pkg/auth"
)

// PrincipalKey is the gin context key the authenticated principal is
// stored under.
const PrincipalKey = "principal"

type AuthMiddleware struct {
	jwtService auth.JWTService
}

func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate verifies the bearer token and sets the principal in
// context. Token issuance happens upstream; only validation occurs here.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		principal, err := m.jwtService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// RequireTypes aborts unless the principal is one of the given types.
func (m *AuthMiddleware) RequireTypes(types ...model.PrincipalType) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFrom(c)
		if principal == nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("not authenticated"))
			c.Abort()
			return
		}
		for _, t := range types {
			if principal.Type == t {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient privileges"))
		c.Abort()
	}
}

// PrincipalFrom extracts the authenticated principal from the gin context,
// or nil when unauthenticated.
func PrincipalFrom(c *gin.Context) *model.Principal {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(*model.Principal); ok {
			return p
		}
	}
	return nil
}
