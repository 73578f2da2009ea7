package services

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"wuyrush.io/pinboard/common/logging"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	st "wuyrush.io/pinboard/stores"
)

const sniffLen = 512

type PinService struct {
	Pins   st.PinStore
	Users  st.UserStore
	Images st.ImageStore
}

// sniffImage makes sure up carries an image, judging by its leading bytes rather than what the client
// claims. up.ContentType is replaced with the detected type. Seekable bodies are rewound after sniffing
// so that storage backends can still seek them; other bodies are buffered.
func sniffImage(up *st.Upload) *se.Err {
	head, err := peekHead(up)
	if err != nil {
		return err
	}
	if len(head) == 0 {
		return se.NewBadInput("Please upload an image")
	}
	ct := http.DetectContentType(head)
	if !strings.HasPrefix(ct, "image/") {
		return se.NewBadInput("Only image uploads are allowed")
	}
	up.ContentType = ct
	return nil
}

// peekHead returns up to sniffLen leading bytes of up.Body without consuming them
func peekHead(up *st.Upload) ([]byte, *se.Err) {
	rs, ok := up.Body.(io.ReadSeeker)
	if !ok {
		br := bufio.NewReaderSize(up.Body, sniffLen)
		head, _ := br.Peek(sniffLen)
		up.Body = br
		return head, nil
	}
	off, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, se.NewServiceFailure("error reading uploaded image").WithCause(err)
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rs, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, se.NewServiceFailure("error reading uploaded image").WithCause(err)
	}
	if _, err := rs.Seek(off, io.SeekStart); err != nil {
		return nil, se.NewServiceFailure("error reading uploaded image").WithCause(err)
	}
	return head[:n], nil
}

// Create uploads the image and saves a new pin owned by the caller
func (s *PinService) Create(ctx context.Context, callerID, title, caption string, up *st.Upload) (*md.Pin, *se.Err) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(caption) == "" {
		return nil, se.NewBadInput("Please provide title and pin")
	}
	if up == nil || up.Body == nil {
		return nil, se.NewBadInput("Please upload an image")
	}
	if err := sniffImage(up); err != nil {
		return nil, err
	}
	clog := logging.WithFuncName().WithField("userID", callerID)
	id, ierr := md.NewID()
	if ierr != nil {
		clog.WithError(ierr).Error("fail to generate pin id")
		return nil, se.NewServiceFailure("error creating pin").WithCause(ierr)
	}
	plog := clog.WithField("pinID", id)
	img, err := s.Images.Save(ctx, up)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &md.Pin{
		ID:        id,
		Title:     title,
		Pin:       caption,
		OwnerID:   callerID,
		Image:     img,
		Comments:  []md.Comment{},
		Likes:     []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Pins.Create(ctx, p); err != nil {
		// nothing refers to the image yet
		if derr := s.Images.Delete(ctx, img.ID); derr != nil {
			logging.WithErr(plog.WithField("imageID", img.ID), derr).Error("error removing image of unsaved pin")
		}
		return nil, err
	}
	plog.Info("pin created")
	return p, nil
}

// ListAll returns all pins, newest first
func (s *PinService) ListAll(ctx context.Context) ([]*md.Pin, *se.Err) {
	return s.Pins.List(ctx)
}

// Get returns pin pinID with its owner populated. Owner is left empty if the owner record is gone.
func (s *PinService) Get(ctx context.Context, pinID string) (*md.PinView, *se.Err) {
	p, err := s.Pins.Get(ctx, pinID)
	if err != nil {
		return nil, err
	}
	pv := &md.PinView{Pin: *p}
	owner, err := s.Users.Get(ctx, p.OwnerID)
	switch {
	case err == nil:
		pv.Owner = owner.Public()
	case err.Code == se.ErrCodeNotFound:
		logging.WithFuncName().WithFields(log.Fields{"pinID": pinID, "ownerID": p.OwnerID}).Warn("pin owner not found")
	default:
		return nil, err
	}
	return pv, nil
}

// Update overwrites title and caption of a pin owned by the caller
func (s *PinService) Update(ctx context.Context, callerID, pinID, title, caption string) (*md.Pin, *se.Err) {
	return s.Pins.Update(ctx, pinID, func(p *md.Pin) *se.Err {
		if !p.OwnedBy(callerID) {
			return se.NewNotOwner()
		}
		p.Title, p.Pin = title, caption
		return nil
	})
}

// Delete deletes the image of a pin owned by the caller, then the pin itself
func (s *PinService) Delete(ctx context.Context, callerID, pinID string) *se.Err {
	clog := logging.WithFuncName().WithFields(log.Fields{"userID": callerID, "pinID": pinID})
	p, err := s.Pins.Get(ctx, pinID)
	if err != nil {
		return err
	}
	if !p.OwnedBy(callerID) {
		return se.NewNotOwner()
	}
	if err := s.Images.Delete(ctx, p.Image.ID); err != nil {
		return err
	}
	if err := s.Pins.Delete(ctx, pinID); err != nil {
		if err.Code != se.ErrCodeNotFound {
			logging.WithErr(clog.WithField("imageID", p.Image.ID), err).Error("pin record left without its image")
		}
		return err
	}
	clog.Info("pin deleted")
	return nil
}

// AddComment appends a comment by caller to the pin. The caller's current name is copied into the comment.
func (s *PinService) AddComment(ctx context.Context, caller *md.User, pinID, text string) (*md.Pin, *se.Err) {
	if strings.TrimSpace(text) == "" {
		return nil, se.NewBadInput("Please provide comment")
	}
	id, ierr := md.NewID()
	if ierr != nil {
		logging.WithFuncName().WithError(ierr).Error("fail to generate comment id")
		return nil, se.NewServiceFailure("error adding comment").WithCause(ierr)
	}
	c := md.Comment{ID: id, UserID: caller.ID, Name: caller.Name, Comment: text}
	return s.Pins.Update(ctx, pinID, func(p *md.Pin) *se.Err {
		p.Comments = append(p.Comments, c)
		return nil
	})
}

// DeleteComment removes comment commentID from the pin if the caller wrote it
func (s *PinService) DeleteComment(ctx context.Context, callerID, pinID, commentID string) (*md.Pin, *se.Err) {
	if commentID == "" {
		return nil, se.NewBadInput("Please provide comment id")
	}
	return s.Pins.Update(ctx, pinID, func(p *md.Pin) *se.Err {
		i := p.CommentIndex(commentID)
		if i < 0 {
			return se.NewNotFound("No comment with this id")
		}
		if p.Comments[i].UserID != callerID {
			return se.NewNotCommentOwner()
		}
		p.RemoveComment(i)
		return nil
	})
}

// Like adds caller to the likes of the pin and returns the updated likes
func (s *PinService) Like(ctx context.Context, callerID, pinID string) ([]string, *se.Err) {
	p, err := s.Pins.Update(ctx, pinID, func(p *md.Pin) *se.Err {
		if !p.Like(callerID) {
			return se.NewAlreadyLiked()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Likes, nil
}

// Unlike removes caller from the likes of the pin and returns the updated likes
func (s *PinService) Unlike(ctx context.Context, callerID, pinID string) ([]string, *se.Err) {
	p, err := s.Pins.Update(ctx, pinID, func(p *md.Pin) *se.Err {
		if !p.Unlike(callerID) {
			return se.NewNotLiked()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Likes, nil
}
