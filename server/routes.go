package main

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	mw "wuyrush.io/pinboard/common/middleware"
	cst "wuyrush.io/pinboard/constants"
)

// set up routes
func (s *pinServer) SetupRoutes() error {
	r := gin.New()
	// client IPs key rate limits, so forwarding headers are only honored from known proxies
	if err := r.SetTrustedProxies(s.Cfg.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}
	r.Use(mw.PanicRecoverer(), mw.RequestLogger(), s.limitReqBody())
	r.GET("/healthz", s.HandleHealthz())

	authn := mw.Authenticate(s.Issuer, s.US)
	throttled := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if s.Counter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{mw.RateLimiter(s.Counter, s.Cfg.RateLimitMax, s.Cfg.RateLimitWindow), h}
	}

	// user related
	user := r.Group("/api/user")
	user.POST("/register", throttled(s.HandleRegister())...)
	user.POST("/login", throttled(s.HandleLogin())...)
	user.GET("/me", authn, s.HandleMyProfile())
	user.GET("/logout", authn, s.HandleLogout())
	user.GET("/:id", authn, s.HandleUserProfile())
	user.POST("/follow/:id", authn, s.HandleToggleFollow())

	// pin related
	pin := r.Group("/api/pin", authn)
	pin.POST("/new", s.HandleCreatePin())
	pin.GET("/all", s.HandleListPins())
	pin.GET("/:id", s.HandleGetPin())
	pin.PUT("/:id", s.HandleUpdatePin())
	pin.DELETE("/:id", s.HandleDeletePin())
	pin.POST("/comment/:id", s.HandleAddComment())
	pin.DELETE("/comment/:id", s.HandleDeleteComment())
	pin.POST("/like/:id", s.HandleLikePin())
	pin.POST("/unlike/:id", s.HandleUnlikePin())

	// static assets
	if s.Cfg.ImageDir != "" {
		r.Static(cst.ImageURLPrefix, s.Cfg.ImageDir)
	}
	r.NoRoute(s.HandleNoRoute())

	s.Router = r
	return nil
}

// HandleNoRoute serves the web client when configured. Unknown paths fall back to its index page so that
// client side routes survive page reloads.
func (s *pinServer) HandleNoRoute() gin.HandlerFunc {
	notFound := func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	}
	if s.Cfg.StaticDir == "" {
		return notFound
	}
	dir := http.Dir(s.Cfg.StaticDir)
	files := http.FileServer(dir)
	index := filepath.Join(s.Cfg.StaticDir, "index.html")
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if c.Request.Method != http.MethodGet || strings.HasPrefix(p, "/api/") {
			notFound(c)
			return
		}
		if f, err := dir.Open(path.Clean(p)); err == nil {
			fi, serr := f.Stat()
			f.Close()
			if serr == nil && !fi.IsDir() {
				files.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		if _, err := os.Stat(index); err != nil {
			notFound(c)
			return
		}
		c.File(index)
	}
}
