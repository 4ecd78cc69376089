package middleware

import (
	"net/http"
	"strings"

	"github.com/ducminhle/gridnote/internal/model"
	"github.com/ducminhle/gridnote/internal/service"
	"github.com/ducminhle/gridnote/pkg/auth"
	"github.com/gin-gonic/gin"
)

// principalKey is the gin context key the resolved principal is stored under
const principalKey = "principal"

// AuthMiddleware resolves the caller identity from either a bearer device
// token or the browser-session cookie, in that order. Both sources yield the
// same Principal shape; downstream handlers never learn how the caller
// authenticated unless they ask for the source explicitly.
func AuthMiddleware(tokens *service.TokenService, jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearer := bearerToken(c); bearer != "" {
			principal, err := tokens.ValidateAndTouch(bearer)
			if err == nil {
				c.Set(principalKey, principal)
				c.Next()
				return
			}
			if !service.IsTokenInvalid(err) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Auth server error"})
				return
			}
			// Invalid bearer falls through to the session cookie.
		}

		if cookie, err := c.Cookie(auth.SessionCookieName); err == nil {
			if claims, err := jwtManager.ValidateToken(cookie); err == nil {
				c.Set(principalKey, &model.Principal{
					UserID: claims.UserID,
					Email:  claims.Email,
					Source: model.PrincipalSourceSession,
				})
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Authentication required"})
	}
}

// RequireSession rejects device-token principals. The pairing surface is the
// one place where a bearer caller must not act: a stolen device token could
// otherwise link further devices to the account.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok || !principal.IsSession() {
			c.AbortWithStatusJSON(http.StatusForbidden, model.ErrorResponse{Error: "Browser session required"})
			return
		}
		c.Next()
	}
}

// PrincipalFrom extracts the resolved principal from the gin context
func PrincipalFrom(c *gin.Context) (*model.Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*model.Principal)
	return principal, ok
}

// bearerToken pulls the token out of the Authorization header, or ""
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
