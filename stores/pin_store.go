package stores

import (
	"context"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v3"
	log "github.com/sirupsen/logrus"
	"wuyrush.io/pinboard/common/logging"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

const errMsgPinNotFound = "Pin not found"

// PinStore vends the interface to interact with pin data.
type PinStore interface {
	Create(ctx context.Context, p *md.Pin) *se.Err
	Get(ctx context.Context, pinID string) (*md.Pin, *se.Err)
	// List returns all pins, newest first
	List(ctx context.Context) ([]*md.Pin, *se.Err)
	// Update applies mutate to the latest version of the pin and persists the result. A mutate error
	// aborts the update and is returned as is. mutate may be called more than once.
	Update(ctx context.Context, pinID string, mutate func(*md.Pin) *se.Err) (*md.Pin, *se.Err)
	Delete(ctx context.Context, pinID string) *se.Err
	Ping(ctx context.Context) *se.Err
	Close() *se.Err
}

// CouchPinStore implements PinStore with CouchDB
type CouchPinStore struct {
	c           *kivik.Client
	db          *kivik.DB
	maxAttempts int64
}

type pinDoc struct {
	md.Pin
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
}

func NewCouchPinStore(ctx context.Context, c *kivik.Client, cfg *CouchConfig) (*CouchPinStore, error) {
	db := c.DB(ctx, cfg.PinDBName)
	if err := db.Err(); err != nil {
		return nil, err
	}
	return &CouchPinStore{c: c, db: db, maxAttempts: cfg.UpdateMaxAttempts}, nil
}

func (s *CouchPinStore) Create(ctx context.Context, p *md.Pin) *se.Err {
	clog := logging.WithFuncName().WithField("pinID", p.ID)
	if _, err := s.db.Put(ctx, p.ID, pinDoc{Pin: *p, Type: docTypePin}); err != nil {
		clog.WithError(err).Error("error saving pin to CouchDB")
		return se.NewServiceFailure("failed to save pin").WithCause(err)
	}
	return nil
}

func (s *CouchPinStore) get(ctx context.Context, pinID string) (*pinDoc, *se.Err) {
	doc := &pinDoc{}
	if err := s.db.Get(ctx, pinID).ScanDoc(doc); err != nil {
		return nil, couchErr(err, errMsgPinNotFound)
	}
	if doc.Type != docTypePin {
		return nil, se.NewNotFound(errMsgPinNotFound)
	}
	return doc, nil
}

func (s *CouchPinStore) Get(ctx context.Context, pinID string) (*md.Pin, *se.Err) {
	doc, err := s.get(ctx, pinID)
	if err != nil {
		if err.Code != se.ErrCodeNotFound {
			logging.WithErr(logging.WithFuncName().WithField("pinID", pinID), err).Error("error getting pin")
		}
		return nil, err
	}
	return &doc.Pin, nil
}

func (s *CouchPinStore) List(ctx context.Context) ([]*md.Pin, *se.Err) {
	const errMsg = "error listing pins"
	clog := logging.WithFuncName()
	rows, err := s.db.AllDocs(ctx, kivik.Options{"include_docs": true})
	if err != nil {
		clog.WithError(err).Error(errMsg)
		return nil, se.NewServiceFailure(errMsg).WithCause(err)
	}
	defer rows.Close()
	pins := []*md.Pin{}
	for rows.Next() {
		if strings.HasPrefix(rows.ID(), "_design/") {
			continue
		}
		doc := &pinDoc{}
		if err := rows.ScanDoc(doc); err != nil {
			clog.WithError(err).WithField("pinID", rows.ID()).Error("error unmarshalling pin document")
			return nil, se.NewServiceFailure(errMsg).WithCause(err)
		}
		if doc.Type != docTypePin {
			continue
		}
		pins = append(pins, &doc.Pin)
	}
	if err := rows.Err(); err != nil {
		clog.WithError(err).Error(errMsg)
		return nil, se.NewServiceFailure(errMsg).WithCause(err)
	}
	md.SortNewestFirst(pins)
	return pins, nil
}

func (s *CouchPinStore) Update(ctx context.Context, pinID string, mutate func(*md.Pin) *se.Err) (*md.Pin, *se.Err) {
	clog := logging.WithFuncName().WithField("pinID", pinID)
	var updated *md.Pin
	err := updateWithRetry(ctx, s.maxAttempts, func() *se.Err {
		doc, err := s.get(ctx, pinID)
		if err != nil {
			return err
		}
		if err := mutate(&doc.Pin); err != nil {
			return err
		}
		doc.UpdatedAt = time.Now().UTC()
		rev, perr := s.db.Put(ctx, pinID, doc)
		if perr != nil {
			clog.WithError(perr).Debug("error writing pin back to CouchDB")
			return couchErr(perr, errMsgPinNotFound)
		}
		doc.Rev = rev
		updated = &doc.Pin
		return nil
	})
	if err != nil {
		if err.Code == se.ErrCodeConflict || err.Code == se.ErrCodeServiceFailure {
			logging.WithErr(clog, err).Error("error updating pin")
		}
		return nil, err
	}
	return updated, nil
}

// Delete deletes pin data from store. Deleting a missing pin fails with NotFound
func (s *CouchPinStore) Delete(ctx context.Context, pinID string) *se.Err {
	clog := logging.WithFuncName().WithField("pinID", pinID)
	doc, err := s.get(ctx, pinID)
	if err != nil {
		return err
	}
	if _, derr := s.db.Delete(ctx, pinID, doc.Rev); derr != nil {
		clog.WithError(derr).Error("error deleting pin from CouchDB")
		return couchErr(derr, errMsgPinNotFound)
	}
	return nil
}

func (s *CouchPinStore) Ping(ctx context.Context) *se.Err {
	return pingCouch(ctx, s.c)
}

func (s *CouchPinStore) Close() *se.Err {
	log.Debug("closing CouchPinStore")
	return nil
}
