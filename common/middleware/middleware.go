package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"wuyrush.io/pinboard/auth"
	"wuyrush.io/pinboard/common/logging"
	cst "wuyrush.io/pinboard/constants"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	st "wuyrush.io/pinboard/stores"
)

// AbortWithErr ends the request with err rendered as {"message": ...}. Only err's own message reaches
// the client; 5xx errors are logged with their full cause chain.
func AbortWithErr(c *gin.Context, err *se.Err) {
	code := err.StatusCode()
	if code >= http.StatusInternalServerError {
		logging.WithErr(log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}), err).Error("error serving request")
	}
	c.AbortWithStatusJSON(code, gin.H{"message": err.Error()})
}

// PanicRecoverer recovers from panic of underlying handlers
func PanicRecoverer() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"panicReason": r,
					"path":        c.Request.URL.Path,
				}).Error("got panic from underlying handler")
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequestLogger logs one line per served request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latencyMs": time.Since(start).Milliseconds(),
			"clientIP":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("served request")
			return
		}
		entry.Debug("served request")
	}
}

// RateLimiter allows each client at most max calls of the route per window. Requests pass through when
// counter fails.
func RateLimiter(counter st.Counter, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.FullPath() + "|" + c.ClientIP()
		n, err := counter.Incr(key, window)
		if err != nil {
			logging.WithErr(logging.WithFuncName().WithField("key", key), err).Warn("rate limit counter unavailable")
			c.Next()
			return
		}
		if n > max {
			AbortWithErr(c, se.NewTooManyRequests())
			return
		}
		c.Next()
	}
}

// credential returns the token carried by the request, cookie first
func credential(c *gin.Context) string {
	if token, err := c.Cookie(cst.CookieNameToken); err == nil && token != "" {
		return token
	}
	h := c.GetHeader(cst.HeaderAuthz)
	if strings.HasPrefix(h, cst.BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, cst.BearerPrefix))
	}
	return ""
}

// Authenticate resolves the credential of the request to a user and makes it available to downstream
// handlers via CurrentUser
func Authenticate(issuer *auth.Issuer, users st.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credential(c)
		if token == "" {
			AbortWithErr(c, se.NewUnauthenticated())
			return
		}
		userID, err := issuer.Verify(token)
		if err != nil {
			AbortWithErr(c, err)
			return
		}
		u, err := users.Get(c.Request.Context(), userID)
		if err != nil {
			if err.Code == se.ErrCodeNotFound {
				AbortWithErr(c, se.NewUnknownSubject())
				return
			}
			AbortWithErr(c, se.NewInternalAuth().WithCause(err))
			return
		}
		c.Set(cst.CtxKeyUser, u.Public())
		c.Next()
	}
}

// CurrentUser returns the user resolved by Authenticate
func CurrentUser(c *gin.Context) (*md.User, bool) {
	v, ok := c.Get(cst.CtxKeyUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*md.User)
	return u, ok && u != nil
}
