package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	mw "wuyrush.io/pinboard/common/middleware"
	cst "wuyrush.io/pinboard/constants"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	"wuyrush.io/pinboard/services"
)

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// limitReqBody caps the size of every request body
func (s *pinServer) limitReqBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Cfg.ReqBodySizeMax > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.Cfg.ReqBodySizeMax)
		}
		c.Next()
	}
}

// bodyErr classifies errors met while reading request bodies
func bodyErr(err error) *se.Err {
	var tooLarge *http.MaxBytesError
	// multipart parsing does not always wrap the cause
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "http: request body too large") {
		return se.NewOversized().WithMsg(cst.ErrMsgRequestBodyTooLarge).WithCause(err)
	}
	return se.NewBadInput("error parsing request body").WithCause(err)
}

// caller returns the user resolved by the auth gateway. Routes missing the gateway answer 401.
func caller(c *gin.Context) (*md.User, bool) {
	u, ok := mw.CurrentUser(c)
	if !ok {
		mw.AbortWithErr(c, se.NewUnauthenticated())
	}
	return u, ok
}

func (s *pinServer) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cst.CookieNameToken, token, int(s.Issuer.TTL().Seconds()), "/", "", s.Cfg.CookieSecure, true)
}

func (s *pinServer) HandleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &registerReq{}
		if err := c.ShouldBindJSON(req); err != nil {
			mw.AbortWithErr(c, bodyErr(err))
			return
		}
		u, token, err := s.Users.Register(c.Request.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		s.setTokenCookie(c, token)
		c.JSON(http.StatusCreated, gin.H{"user": u, "token": token, "message": "User Registered"})
	}
}

func (s *pinServer) HandleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &loginReq{}
		if err := c.ShouldBindJSON(req); err != nil {
			mw.AbortWithErr(c, bodyErr(err))
			return
		}
		u, token, err := s.Users.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		s.setTokenCookie(c, token)
		c.JSON(http.StatusOK, gin.H{"user": u, "token": token, "message": "Logged in"})
	}
}

// HandleLogout expires the token cookie. Credentials are stateless, so a copied token stays valid until
// it expires.
func (s *pinServer) HandleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cst.CookieNameToken, "", -1, "/", "", s.Cfg.CookieSecure, true)
		c.JSON(http.StatusOK, gin.H{"message": "Logged Out Successfully"})
	}
}

func (s *pinServer) HandleMyProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		u, err := s.Users.MyProfile(c.Request.Context(), me.ID)
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func (s *pinServer) HandleUserProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.Users.Profile(c.Request.Context(), c.Param("id"))
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func (s *pinServer) HandleToggleFollow() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		action, err := s.Users.ToggleFollow(c.Request.Context(), me.ID, c.Param("id"))
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		msg := "User followed"
		if action == services.FollowActionUnfollowed {
			msg = "User unfollowed"
		}
		c.JSON(http.StatusOK, gin.H{"message": msg, "action": action})
	}
}

// HandleHealthz reports whether the stores are reachable
func (s *pinServer) HandleHealthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		for _, ping := range []func() *se.Err{
			func() *se.Err { return s.US.Ping(ctx) },
			func() *se.Err { return s.PS.Ping(ctx) },
		} {
			if err := ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
