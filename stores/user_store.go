package stores

import (
	"context"
	"net/http"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v3"
	log "github.com/sirupsen/logrus"
	"wuyrush.io/pinboard/common/logging"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

const (
	errMsgUserNotFound = "User not found"
	keyTmplEmailClaim  = "email:"
)

// UserStore vends operations to manage user records
type UserStore interface {
	// Create saves a new user. It fails with DuplicateEmail if u.Email is taken already
	Create(ctx context.Context, u *md.User) *se.Err
	Get(ctx context.Context, userID string) (*md.User, *se.Err)
	GetByEmail(ctx context.Context, email string) (*md.User, *se.Err)
	// Update applies mutate to the latest version of the user and persists the result. A mutate error
	// aborts the update and is returned as is. mutate may be called more than once.
	Update(ctx context.Context, userID string, mutate func(*md.User) *se.Err) (*md.User, *se.Err)
	Ping(ctx context.Context) *se.Err
	Close() *se.Err
}

// NormalizeEmail returns the canonical form of email used for uniqueness checks
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CouchUserStore implements UserStore with CouchDB
type CouchUserStore struct {
	c           *kivik.Client
	db          *kivik.DB
	maxAttempts int64
}

type userDoc struct {
	md.User
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
}

// emailClaim reserves an email address for a user. Its document id is derived from the address so
// that CouchDB rejects a second claim on the same address.
type emailClaim struct {
	ID     string `json:"_id"`
	Rev    string `json:"_rev,omitempty"`
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

func NewCouchUserStore(ctx context.Context, c *kivik.Client, cfg *CouchConfig) (*CouchUserStore, error) {
	db := c.DB(ctx, cfg.UserDBName)
	if err := db.Err(); err != nil {
		return nil, err
	}
	return &CouchUserStore{c: c, db: db, maxAttempts: cfg.UpdateMaxAttempts}, nil
}

func emailClaimID(email string) string {
	return keyTmplEmailClaim + NormalizeEmail(email)
}

func (s *CouchUserStore) Create(ctx context.Context, u *md.User) *se.Err {
	clog := logging.WithFuncName().WithField("userID", u.ID)
	// 1. claim the email first so that two registrations with the same email can never both succeed
	claimID := emailClaimID(u.Email)
	claimRev, err := s.db.Put(ctx, claimID, emailClaim{ID: claimID, Type: docTypeEmailClaim, UserID: u.ID})
	if err != nil {
		if kivik.StatusCode(err) == http.StatusConflict {
			return se.NewDuplicateEmail().WithCause(err)
		}
		clog.WithError(err).Error("error claiming user email in CouchDB")
		return couchErr(err, errMsgUserNotFound)
	}
	// 2. save the user itself
	if _, err := s.db.Put(ctx, u.ID, userDoc{User: *u, Type: docTypeUser}); err != nil {
		clog.WithError(err).Error("error saving user to CouchDB")
		// release the claim in best-effort manner so that the email can be used again
		if _, derr := s.db.Delete(ctx, claimID, claimRev); derr != nil {
			clog.WithError(derr).WithField("claimID", claimID).Error("error releasing email claim")
		}
		return couchErr(err, errMsgUserNotFound)
	}
	return nil
}

func (s *CouchUserStore) get(ctx context.Context, userID string) (*userDoc, *se.Err) {
	doc := &userDoc{}
	if err := s.db.Get(ctx, userID).ScanDoc(doc); err != nil {
		return nil, couchErr(err, errMsgUserNotFound)
	}
	// ids of other document kinds living in the same database are not user ids
	if doc.Type != docTypeUser {
		return nil, se.NewNotFound(errMsgUserNotFound)
	}
	return doc, nil
}

func (s *CouchUserStore) Get(ctx context.Context, userID string) (*md.User, *se.Err) {
	doc, err := s.get(ctx, userID)
	if err != nil {
		if err.Code != se.ErrCodeNotFound {
			logging.WithErr(logging.WithFuncName().WithField("userID", userID), err).Error("error getting user")
		}
		return nil, err
	}
	return &doc.User, nil
}

func (s *CouchUserStore) GetByEmail(ctx context.Context, email string) (*md.User, *se.Err) {
	clog := logging.WithFuncName().WithField("email", email)
	claim := &emailClaim{}
	if err := s.db.Get(ctx, emailClaimID(email)).ScanDoc(claim); err != nil {
		perr := couchErr(err, errMsgUserNotFound)
		if perr.Code != se.ErrCodeNotFound {
			logging.WithErr(clog, perr).Error("error getting email claim")
		}
		return nil, perr
	}
	return s.Get(ctx, claim.UserID)
}

func (s *CouchUserStore) Update(ctx context.Context, userID string, mutate func(*md.User) *se.Err) (*md.User, *se.Err) {
	clog := logging.WithFuncName().WithField("userID", userID)
	var updated *md.User
	err := updateWithRetry(ctx, s.maxAttempts, func() *se.Err {
		doc, err := s.get(ctx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&doc.User); err != nil {
			return err
		}
		doc.UpdatedAt = time.Now().UTC()
		rev, perr := s.db.Put(ctx, userID, doc)
		if perr != nil {
			if kivik.StatusCode(perr) == http.StatusConflict {
				clog.Debug("lost update race, retrying")
			}
			return couchErr(perr, errMsgUserNotFound)
		}
		doc.Rev = rev
		updated = &doc.User
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *CouchUserStore) Ping(ctx context.Context) *se.Err {
	return pingCouch(ctx, s.c)
}

func (s *CouchUserStore) Close() *se.Err {
	log.Debug("closing CouchUserStore")
	return nil
}
