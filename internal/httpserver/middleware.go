package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
	ordersvc "storefront/internal/service/order"
	usersvc "storefront/internal/service/user"
)

const (
	ctxSession = "session"
	ctxUserID  = "userID"
	ctxActor   = "actor"
)

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if sid := c.GetHeader(headerSessionID); sid != "" {
			fields = append(fields, zap.String("session_id", sid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}

// sessionMiddleware resolves X-Session-ID to a live cart session.
func sessionMiddleware(sessions sessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerSessionID))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "session_required", Message: headerSessionID + " header required"})
			return
		}
		sess, err := sessions.Get(id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Error: "session_not_found", Message: "session expired or unknown"})
			return
		}
		c.Set(ctxSession, sess)
		c.Next()
	}
}

// identityMiddleware trusts X-User-ID from the auth gateway. A missing header
// means the caller is anonymous; the cart session follows either way.
func identityMiddleware(users userService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID != "" {
			if _, err := users.Identify(c.Request.Context(), usersvc.IdentifyInput{
				UserID:      userID,
				Email:       c.GetHeader(headerUserEmail),
				DisplayName: c.GetHeader(headerUserName),
			}); err != nil {
				writeError(c, err)
				c.Abort()
				return
			}
		}
		c.Set(ctxUserID, userID)
		if sess, ok := sessionFrom(c); ok {
			sess.Identify(c.Request.Context(), userID)
		}
		c.Next()
	}
}

func adminMiddleware(users userService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !users.IsAdmin(c.GetHeader(headerAdminKey)) {
			writeError(c, domain.ErrForbidden)
			c.Abort()
			return
		}
		c.Set(ctxActor, ordersvc.Actor{UserID: strings.TrimSpace(c.GetHeader(headerUserID)), Admin: true})
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (*cartsvc.Session, bool) {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*cartsvc.Session)
	return sess, ok
}
