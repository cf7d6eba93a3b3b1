package middlewares

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/twofactor"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/gin-gonic/gin"
)

const (
	PersonalTokenHeader = "Personal-Token"
	bearerPrefix        = "Bearer "
)

// SessionMiddleware authenticates the request with a session JWT
// (Authorization: Bearer) or a personal token. Anonymous requests pass through.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = utils.SetClientIPInContext(ctx, c.ClientIP())
		if header := c.GetHeader(twofactor.HeaderName); header != "" {
			ctx = utils.SetTwoFactorHeaderInContext(ctx, header)
		}

		auth := c.GetHeader("Authorization")
		personalToken := c.GetHeader(PersonalTokenHeader)
		switch {
		case strings.HasPrefix(auth, bearerPrefix):
			token := strings.TrimSpace(auth[len(bearerPrefix):])
			claims, err := utils.JwtValidate([]byte(config.GetSettings().Session.Secret), token)
			if err != nil || claims.Scope != utils.TokenScopeSession {
				abortUnauthorized(c)
				return
			}
			sessionId := claims.RegisteredClaims.ID
			revoked, err := models.IsSessionRevoked(sessionId)
			if err != nil {
				config.LogErrorCtx(ctx, "middlewares", "SessionMiddleware", "IsSessionRevoked", sessionId, err)
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
			if revoked {
				abortUnauthorized(c)
				return
			}
			ctx = utils.SetTokenInContext(ctx, token)
			ctx = utils.SetSessionIdInContext(ctx, sessionId)
			ctx = utils.SetUserIdInContext(ctx, claims.ID)

		case personalToken != "":
			pt, err := models.FindPersonalToken(ctx, personalToken)
			if err != nil {
				if errors.Is(err, utils.ErrorRecordNotFound) {
					abortUnauthorized(c)
					return
				}
				config.LogErrorCtx(ctx, "middlewares", "SessionMiddleware", "FindPersonalToken", nil, err)
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
			// 2FA validations are remembered per token
			ctx = utils.SetSessionIdInContext(ctx, fmt.Sprintf("pt:%d", pt.ID))
			ctx = utils.SetUserIdInContext(ctx, pt.UserId)
			if scopes := pt.Scopes(); scopes != nil {
				ctx = utils.SetScopesInContext(ctx, scopes)
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	c.Abort()
}
