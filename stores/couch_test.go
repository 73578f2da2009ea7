package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

// fakeCouch is a tiny CouchDB stand-in keeping documents in memory. It honors _rev so that update
// conflicts behave like the real thing.
type fakeCouch struct {
	mu   sync.Mutex
	dbs  map[string]map[string]map[string]interface{}
	revs int
	// conflicts makes the next n document writes fail with 409
	conflicts int
}

func newFakeCouch(dbs ...string) *fakeCouch {
	f := &fakeCouch{dbs: map[string]map[string]map[string]interface{}{}}
	for _, db := range dbs {
		f.dbs[db] = map[string]map[string]interface{}{}
	}
	return f
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if parts[0] == "" || parts[0] == "_up" {
		writeJSON(w, http.StatusOK, map[string]string{"couchdb": "Welcome"})
		return
	}
	db, ok := f.dbs[parts[0]]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodHead, http.MethodGet:
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "Database does not exist."})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"db_name": parts[0]})
		case http.MethodPut:
			if ok {
				writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": "file_exists"})
				return
			}
			f.dbs[parts[0]] = map[string]map[string]interface{}{}
			writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
		}
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "Database does not exist."})
		return
	}
	id := parts[1]
	if id == "_all_docs" {
		rows := []map[string]interface{}{}
		for docID, doc := range db {
			rows = append(rows, map[string]interface{}{
				"id":    docID,
				"key":   docID,
				"value": map[string]interface{}{"rev": doc["_rev"]},
				"doc":   doc,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"total_rows": len(rows), "offset": 0, "rows": rows})
		return
	}
	cur, exists := db[id]
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "missing"})
			return
		}
		w.Header().Set("ETag", fmt.Sprintf("%q", cur["_rev"]))
		writeJSON(w, http.StatusOK, cur)
	case http.MethodPut:
		doc := map[string]interface{}{}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "reason": err.Error()})
			return
		}
		rev, _ := doc["_rev"].(string)
		if f.conflicts > 0 || (exists && rev != cur["_rev"]) || (!exists && rev != "") {
			if f.conflicts > 0 {
				f.conflicts--
			}
			writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": "Document update conflict."})
			return
		}
		f.revs++
		newRev := fmt.Sprintf("%d-fake", f.revs)
		doc["_id"], doc["_rev"] = id, newRev
		db[id] = doc
		w.Header().Set("ETag", fmt.Sprintf("%q", newRev))
		writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": id, "rev": newRev})
	case http.MethodDelete:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "missing"})
			return
		}
		if r.URL.Query().Get("rev") != cur["_rev"] {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": "Document update conflict."})
			return
		}
		delete(db, id)
		f.revs++
		newRev := fmt.Sprintf("%d-fake", f.revs)
		w.Header().Set("ETag", fmt.Sprintf("%q", newRev))
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id, "rev": newRev})
	}
}

func (f *fakeCouch) setConflicts(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts = n
}

func setupCouchStores(t *testing.T) (*fakeCouch, *CouchUserStore, *CouchPinStore) {
	fake := newFakeCouch("users", "pins")
	svr := httptest.NewServer(fake)
	t.Cleanup(svr.Close)
	ctx := context.Background()
	cfg := &CouchConfig{DBAddr: svr.URL, UserDBName: "users", PinDBName: "pins", UpdateMaxAttempts: 3}
	c, err := NewCouchClient(ctx, cfg)
	require.NoError(t, err)
	us, err := NewCouchUserStore(ctx, c, cfg)
	require.NoError(t, err)
	ps, err := NewCouchPinStore(ctx, c, cfg)
	require.NoError(t, err)
	return fake, us, ps
}

func TestCouchUserStore(t *testing.T) {
	_, us, _ := setupCouchStores(t)
	ctx := context.Background()
	u := &md.User{ID: "u1", Name: "john", Email: "John@Example.com", Password: "hash",
		Followers: []string{}, Following: []string{}}
	require.Nil(t, us.Create(ctx, u))

	t.Run("Get", func(t *testing.T) {
		got, err := us.Get(ctx, "u1")
		require.Nil(t, err)
		assert.Equal(t, "john", got.Name)
		assert.Equal(t, "hash", got.Password)
	})
	t.Run("GetByEmailNormalized", func(t *testing.T) {
		got, err := us.GetByEmail(ctx, "  john@example.COM ")
		require.Nil(t, err)
		assert.Equal(t, "u1", got.ID)
	})
	t.Run("DuplicateEmail", func(t *testing.T) {
		err := us.Create(ctx, &md.User{ID: "u2", Email: "john@example.com"})
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeDuplicateEmail, err.Code)
		_, gerr := us.Get(ctx, "u2")
		require.NotNil(t, gerr)
		assert.Equal(t, se.ErrCodeNotFound, gerr.Code, "no user record should be created")
	})
	t.Run("NotFound", func(t *testing.T) {
		_, err := us.Get(ctx, "missing")
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeNotFound, err.Code)
		_, err = us.GetByEmail(ctx, "missing@example.com")
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeNotFound, err.Code)
	})
	t.Run("ClaimIsNotAUser", func(t *testing.T) {
		_, err := us.Get(ctx, "email:john@example.com")
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeNotFound, err.Code)
	})
	t.Run("Update", func(t *testing.T) {
		got, err := us.Update(ctx, "u1", func(u *md.User) *se.Err {
			u.AddFollower("u9")
			return nil
		})
		require.Nil(t, err)
		assert.Equal(t, []string{"u9"}, got.Followers)
		again, err := us.Get(ctx, "u1")
		require.Nil(t, err)
		assert.Equal(t, []string{"u9"}, again.Followers)
	})
	t.Run("UpdateAbortedByMutate", func(t *testing.T) {
		_, err := us.Update(ctx, "u1", func(u *md.User) *se.Err {
			u.Name = "changed"
			return se.NewSelfFollow()
		})
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeSelfFollow, err.Code)
		got, gerr := us.Get(ctx, "u1")
		require.Nil(t, gerr)
		assert.Equal(t, "john", got.Name)
	})
}

func TestCouchPinStore(t *testing.T) {
	fake, _, ps := setupCouchStores(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		require.Nil(t, ps.Create(ctx, &md.Pin{
			ID: id, Title: id, OwnerID: "u1", Likes: []string{}, Comments: []md.Comment{},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	t.Run("ListNewestFirst", func(t *testing.T) {
		pins, err := ps.List(ctx)
		require.Nil(t, err)
		ids := []string{}
		for _, p := range pins {
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []string{"p3", "p2", "p1"}, ids)
	})
	t.Run("UpdateRetriesOnConflict", func(t *testing.T) {
		fake.setConflicts(2)
		calls := 0
		got, err := ps.Update(ctx, "p1", func(p *md.Pin) *se.Err {
			calls++
			p.Like("u2")
			return nil
		})
		require.Nil(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []string{"u2"}, got.Likes)
	})
	t.Run("UpdateGivesUpOnConflict", func(t *testing.T) {
		fake.setConflicts(10)
		defer fake.setConflicts(0)
		_, err := ps.Update(ctx, "p1", func(p *md.Pin) *se.Err { return nil })
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeConflict, err.Code)
	})
	t.Run("Delete", func(t *testing.T) {
		require.Nil(t, ps.Delete(ctx, "p2"))
		_, err := ps.Get(ctx, "p2")
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeNotFound, err.Code)
		err = ps.Delete(ctx, "p2")
		require.NotNil(t, err)
		assert.Equal(t, se.ErrCodeNotFound, err.Code)
	})
	t.Run("Ping", func(t *testing.T) {
		assert.Nil(t, ps.Ping(ctx))
	})
}
