// Package services implements user and pin operations on top of the stores. Every failure is returned
// as *se.Err so that transports can map it to a response without inspecting causes.
package services

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"wuyrush.io/pinboard/auth"
	"wuyrush.io/pinboard/common/logging"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	st "wuyrush.io/pinboard/stores"
)

// FollowAction tells which way ToggleFollow went
type FollowAction string

const (
	FollowActionFollowed   FollowAction = "followed"
	FollowActionUnfollowed FollowAction = "unfollowed"
)

type UserService struct {
	Users  st.UserStore
	Issuer *auth.Issuer
}

// Register creates a user and returns it along with a credential issued for it. The returned user
// carries the password hash.
func (s *UserService) Register(ctx context.Context, name, email, passwd string) (*md.User, string, *se.Err) {
	name, email = strings.TrimSpace(name), st.NormalizeEmail(email)
	if name == "" || email == "" || passwd == "" {
		return nil, "", se.NewBadInput("Please provide name, email and password")
	}
	if len(passwd) > auth.PasswordMaxBytes {
		return nil, "", se.NewBadInput("Password must not be longer than 72 bytes")
	}
	clog := logging.WithFuncName().WithField("email", email)
	hash, err := auth.HashPassword(passwd)
	if err != nil {
		if err.Code != se.ErrCodeAPIBadRequest {
			logging.WithErr(clog, err).Error("error hashing password")
		}
		return nil, "", err
	}
	id, ierr := md.NewID()
	if ierr != nil {
		clog.WithError(ierr).Error("fail to generate user id")
		return nil, "", se.NewServiceFailure("error registering user").WithCause(ierr)
	}
	now := time.Now().UTC()
	u := &md.User{
		ID:        id,
		Name:      name,
		Email:     email,
		Password:  hash,
		Followers: []string{},
		Following: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return nil, "", err
	}
	token, err := s.Issuer.Issue(u.ID)
	if err != nil {
		logging.WithErr(clog.WithField("userID", u.ID), err).Error("error issuing token for new user")
		return nil, "", err
	}
	clog.WithField("userID", u.ID).Info("user registered")
	return u, token, nil
}

// Login checks the given credentials and returns the user with a fresh credential
func (s *UserService) Login(ctx context.Context, email, passwd string) (*md.User, string, *se.Err) {
	if strings.TrimSpace(email) == "" || passwd == "" {
		return nil, "", se.NewBadInput("Please provide email and password")
	}
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if err.Code == se.ErrCodeNotFound {
			return nil, "", se.NewUnknownEmail()
		}
		return nil, "", err
	}
	if !auth.CheckPassword(u.Password, passwd) {
		return nil, "", se.NewWrongPassword()
	}
	token, err := s.Issuer.Issue(u.ID)
	if err != nil {
		logging.WithErr(logging.WithFuncName().WithField("userID", u.ID), err).Error("error issuing token")
		return nil, "", err
	}
	return u, token, nil
}

// MyProfile returns the full record of the caller
func (s *UserService) MyProfile(ctx context.Context, callerID string) (*md.User, *se.Err) {
	return s.Users.Get(ctx, callerID)
}

// Profile returns user userID without the password hash
func (s *UserService) Profile(ctx context.Context, userID string) (*md.User, *se.Err) {
	u, err := s.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

// ToggleFollow makes the caller follow target, or unfollow it if the caller follows it already.
// The two records are written one after another; a crash in between leaves the pair asymmetric.
func (s *UserService) ToggleFollow(ctx context.Context, callerID, targetID string) (FollowAction, *se.Err) {
	if callerID == targetID {
		return "", se.NewSelfFollow()
	}
	clog := logging.WithFuncName().WithFields(log.Fields{"userID": callerID, "targetID": targetID})
	// the target record decides the direction so that concurrent toggles serialize on it
	var action FollowAction
	if _, err := s.Users.Update(ctx, targetID, func(t *md.User) *se.Err {
		if t.FollowedBy(callerID) {
			t.RemoveFollower(callerID)
			action = FollowActionUnfollowed
		} else {
			t.AddFollower(callerID)
			action = FollowActionFollowed
		}
		return nil
	}); err != nil {
		return "", err
	}
	if _, err := s.Users.Update(ctx, callerID, func(c *md.User) *se.Err {
		if action == FollowActionFollowed {
			c.AddFollowing(targetID)
		} else {
			c.RemoveFollowing(targetID)
		}
		return nil
	}); err != nil {
		logging.WithErr(clog.WithField("action", action), err).Error("follow relation left one-sided")
		return "", err
	}
	clog.WithField("action", action).Debug("follow toggled")
	return action, nil
}
