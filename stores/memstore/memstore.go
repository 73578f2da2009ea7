// Package memstore vends in-memory stores for local development and tests. Data is lost when the process
// exits.
package memstore

import (
	"context"
	"sync"
	"time"

	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	st "wuyrush.io/pinboard/stores"
)

var (
	_ st.UserStore = (*UserStore)(nil)
	_ st.PinStore  = (*PinStore)(nil)
)

// UserStore is a st.UserStore held in memory. Records are copied on the way in and out so that callers
// never share state with the store.
type UserStore struct {
	mu      sync.RWMutex
	users   map[string]*md.User
	byEmail map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{users: map[string]*md.User{}, byEmail: map[string]string{}}
}

func (s *UserStore) Create(ctx context.Context, u *md.User) *se.Err {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := st.NormalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return se.NewDuplicateEmail()
	}
	if _, ok := s.users[u.ID]; ok {
		return se.NewConflict("user already exists")
	}
	s.users[u.ID] = u.Clone()
	s.byEmail[email] = u.ID
	return nil
}

func (s *UserStore) Get(ctx context.Context, userID string) (*md.User, *se.Err) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, se.NewNotFound("User not found")
	}
	return u.Clone(), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*md.User, *se.Err) {
	s.mu.RLock()
	id, ok := s.byEmail[st.NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, se.NewNotFound("User not found")
	}
	return s.Get(ctx, id)
}

func (s *UserStore) Update(ctx context.Context, userID string, mutate func(*md.User) *se.Err) (*md.User, *se.Err) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, se.NewNotFound("User not found")
	}
	cp := u.Clone()
	if err := mutate(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()
	s.users[userID] = cp
	return cp.Clone(), nil
}

// Len returns the number of users held
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *UserStore) Ping(ctx context.Context) *se.Err { return nil }

func (s *UserStore) Close() *se.Err { return nil }

// PinStore is a st.PinStore held in memory
type PinStore struct {
	mu   sync.RWMutex
	pins map[string]*md.Pin
}

func NewPinStore() *PinStore {
	return &PinStore{pins: map[string]*md.Pin{}}
}

func (s *PinStore) Create(ctx context.Context, p *md.Pin) *se.Err {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pins[p.ID]; ok {
		return se.NewConflict("pin already exists")
	}
	s.pins[p.ID] = p.Clone()
	return nil
}

func (s *PinStore) Get(ctx context.Context, pinID string) (*md.Pin, *se.Err) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pins[pinID]
	if !ok {
		return nil, se.NewNotFound("Pin not found")
	}
	return p.Clone(), nil
}

func (s *PinStore) List(ctx context.Context) ([]*md.Pin, *se.Err) {
	s.mu.RLock()
	pins := make([]*md.Pin, 0, len(s.pins))
	for _, p := range s.pins {
		pins = append(pins, p.Clone())
	}
	s.mu.RUnlock()
	md.SortNewestFirst(pins)
	return pins, nil
}

func (s *PinStore) Update(ctx context.Context, pinID string, mutate func(*md.Pin) *se.Err) (*md.Pin, *se.Err) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[pinID]
	if !ok {
		return nil, se.NewNotFound("Pin not found")
	}
	cp := p.Clone()
	if err := mutate(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()
	s.pins[pinID] = cp
	return cp.Clone(), nil
}

func (s *PinStore) Delete(ctx context.Context, pinID string) *se.Err {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pins[pinID]; !ok {
		return se.NewNotFound("Pin not found")
	}
	delete(s.pins, pinID)
	return nil
}

func (s *PinStore) Ping(ctx context.Context) *se.Err { return nil }

func (s *PinStore) Close() *se.Err { return nil }
