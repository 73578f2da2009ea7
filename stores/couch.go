package stores

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kivik/couchdb/v3"
	kivik "github.com/go-kivik/kivik/v3"
	log "github.com/sirupsen/logrus"
	rt "wuyrush.io/pinboard/common/retry"
	se "wuyrush.io/pinboard/errors"
)

const (
	docTypeUser       = "user"
	docTypeEmailClaim = "emailClaim"
	docTypePin        = "pin"

	defaultUpdateMaxAttempts = 5
)

type CouchConfig struct {
	DBAddr               string
	DBUsername, DBPasswd string
	UserDBName           string
	PinDBName            string
	// fields below are optional
	UpdateMaxAttempts int64
}

// NewCouchClient connects to CouchDB at cfg.DBAddr, authenticating with basic auth when credentials
// are given. No request is made to CouchDB.
func NewCouchClient(ctx context.Context, cfg *CouchConfig) (*kivik.Client, error) {
	c, err := kivik.New("couch", cfg.DBAddr)
	if err != nil {
		return nil, err
	}
	if cfg.DBUsername != "" {
		if err := c.Authenticate(ctx, couchdb.BasicAuth(cfg.DBUsername, cfg.DBPasswd)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// EnsureDBs creates the given databases unless they exist already
func EnsureDBs(ctx context.Context, c *kivik.Client, names ...string) error {
	for _, name := range names {
		ok, err := c.DBExists(ctx, name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		// another replica may have created it in the meantime
		if err := c.CreateDB(ctx, name); err != nil && kivik.StatusCode(err) != http.StatusPreconditionFailed {
			return err
		}
		log.WithField("db", name).Info("created CouchDB database")
	}
	return nil
}

func pingCouch(ctx context.Context, c *kivik.Client) *se.Err {
	ok, err := c.Ping(ctx)
	if err != nil {
		return se.NewServiceFailure("error pinging CouchDB").WithCause(err)
	}
	if !ok {
		return se.NewServiceFailure("CouchDB is not ready")
	}
	return nil
}

// couchErr translates errors from CouchDB into *se.Err
func couchErr(err error, notFoundMsg string) *se.Err {
	switch kivik.StatusCode(err) {
	case http.StatusNotFound:
		return se.NewNotFound(notFoundMsg).WithCause(err)
	case http.StatusConflict:
		return se.NewConflict("document update conflict").WithCause(err)
	default:
		return se.NewServiceFailure("error calling CouchDB").WithCause(err)
	}
}

// updateWithRetry runs the read-mutate-write attempt f again whenever it loses the race against a
// concurrent writer of the same document
func updateWithRetry(ctx context.Context, maxAttempts int64, f func() *se.Err) *se.Err {
	if maxAttempts <= 0 {
		maxAttempts = defaultUpdateMaxAttempts
	}
	err := rt.Retry(ctx,
		func() error {
			if err := f(); err != nil {
				return err
			}
			return nil
		},
		rt.WithMaxAttempts(maxAttempts),
		rt.WithBaseDelay(10*time.Millisecond),
		rt.WithExp(2.0),
		rt.WithJitter(0.5),
		rt.WithRetryOn(func(e error) bool { return se.Is(e, se.ErrCodeConflict) }),
	)
	if err == nil {
		return nil
	}
	if v, ok := err.(*se.Err); ok {
		return v
	}
	return se.NewServiceFailure("error updating document").WithCause(err)
}
