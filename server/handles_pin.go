package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"wuyrush.io/pinboard/common/logging"
	mw "wuyrush.io/pinboard/common/middleware"
	se "wuyrush.io/pinboard/errors"
	st "wuyrush.io/pinboard/stores"
)

// in-memory part of multipart forms; larger files are buffered on disk by net/http
const multipartMemMaxByte = 1 << 20

type updatePinReq struct {
	Title string `json:"title"`
	Pin   string `json:"pin"`
}

type commentReq struct {
	Comment string `json:"comment"`
}

func (s *pinServer) HandleCreatePin() gin.HandlerFunc {
	clog := logging.WithFuncName().WithField("httpMethod", http.MethodPost)
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		if err := c.Request.ParseMultipartForm(multipartMemMaxByte); err != nil {
			mw.AbortWithErr(c, bodyErr(err))
			return
		}
		defer c.Request.MultipartForm.RemoveAll()
		fh, err := c.FormFile("file")
		if err != nil {
			mw.AbortWithErr(c, se.NewBadInput("Please upload an image").WithCause(err))
			return
		}
		f, err := fh.Open()
		if err != nil {
			clog.WithError(err).WithField("filename", fh.Filename).Error("error opening uploaded image")
			mw.AbortWithErr(c, se.NewServiceFailure("error reading uploaded image").WithCause(err))
			return
		}
		defer f.Close()
		p, serr := s.Pins.Create(c.Request.Context(), me.ID, c.PostForm("title"), c.PostForm("pin"), &st.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
		if serr != nil {
			mw.AbortWithErr(c, serr)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Pin Created", "pin": p})
	}
}

func (s *pinServer) HandleListPins() gin.HandlerFunc {
	return func(c *gin.Context) {
		pins, err := s.Pins.ListAll(c.Request.Context())
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, pins)
	}
}

func (s *pinServer) HandleGetPin() gin.HandlerFunc {
	return func(c *gin.Context) {
		pv, err := s.Pins.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, pv)
	}
}

func (s *pinServer) HandleUpdatePin() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		req := &updatePinReq{}
		if err := c.ShouldBindJSON(req); err != nil {
			mw.AbortWithErr(c, bodyErr(err))
			return
		}
		p, err := s.Pins.Update(c.Request.Context(), me.ID, c.Param("id"), req.Title, req.Pin)
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Pin updated", "pin": p})
	}
}

func (s *pinServer) HandleDeletePin() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		if err := s.Pins.Delete(c.Request.Context(), me.ID, c.Param("id")); err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Pin Deleted"})
	}
}

func (s *pinServer) HandleAddComment() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		req := &commentReq{}
		if err := c.ShouldBindJSON(req); err != nil {
			mw.AbortWithErr(c, bodyErr(err))
			return
		}
		p, err := s.Pins.AddComment(c.Request.Context(), me, c.Param("id"), req.Comment)
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Comment Added", "pin": p})
	}
}

func (s *pinServer) HandleDeleteComment() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		if _, err := s.Pins.DeleteComment(c.Request.Context(), me.ID, c.Param("id"), c.Query("commentId")); err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Comment Deleted."})
	}
}

func (s *pinServer) HandleLikePin() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		likes, err := s.Pins.Like(c.Request.Context(), me.ID, c.Param("id"))
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Pin liked successfully!", "likes": likes})
	}
}

func (s *pinServer) HandleUnlikePin() gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := caller(c)
		if !ok {
			return
		}
		likes, err := s.Pins.Unlike(c.Request.Context(), me.ID, c.Param("id"))
		if err != nil {
			mw.AbortWithErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Pin unliked successfully", "likes": likes})
	}
}
