package models

import (
	"sort"
	"time"

	"github.com/segmentio/ksuid"
)

/*
 Application layer data models. JSON field names follow the document shapes the web client
 consumes.
*/

// NewID returns a new k-sortable unique id used for users, pins and comments
func NewID() (string, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// User models individual service user
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Password holds the bcrypt hash of user's password; never the password itself
	Password  string    `json:"password,omitempty"`
	Followers []string  `json:"followers"`
	Following []string  `json:"following"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public returns a copy of u with the password hash stripped
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	cp := u.Clone()
	cp.Password = ""
	return cp
}

// Clone returns a deep copy of u
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Followers = cloneIDs(u.Followers)
	cp.Following = cloneIDs(u.Following)
	return &cp
}

// FollowedBy reports whether the user with given id follows u
func (u *User) FollowedBy(userID string) bool {
	return containsID(u.Followers, userID)
}

func (u *User) AddFollower(userID string) {
	u.Followers = addID(u.Followers, userID)
}

func (u *User) RemoveFollower(userID string) {
	u.Followers = removeID(u.Followers, userID)
}

func (u *User) AddFollowing(userID string) {
	u.Following = addID(u.Following, userID)
}

func (u *User) RemoveFollowing(userID string) {
	u.Following = removeID(u.Following, userID)
}

// Image references pin image held by external image storage
type Image struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Comment is a user remark on a pin. Name is a snapshot of author's name when the comment was
// made and is never synced afterwards.
type Comment struct {
	ID      string `json:"_id"`
	UserID  string `json:"user"`
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

type Pin struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Pin       string    `json:"pin"`
	OwnerID   string    `json:"owner"`
	Image     Image     `json:"image"`
	Comments  []Comment `json:"comments"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of p
func (p *Pin) Clone() *Pin {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Likes = cloneIDs(p.Likes)
	cp.Comments = make([]Comment, len(p.Comments))
	copy(cp.Comments, p.Comments)
	return &cp
}

func (p *Pin) OwnedBy(userID string) bool {
	return p.OwnerID == userID
}

func (p *Pin) LikedBy(userID string) bool {
	return containsID(p.Likes, userID)
}

// Like adds userID to likes and reports whether likes changed
func (p *Pin) Like(userID string) bool {
	if p.LikedBy(userID) {
		return false
	}
	p.Likes = addID(p.Likes, userID)
	return true
}

// Unlike removes userID from likes and reports whether likes changed
func (p *Pin) Unlike(userID string) bool {
	if !p.LikedBy(userID) {
		return false
	}
	p.Likes = removeID(p.Likes, userID)
	return true
}

// CommentIndex returns the position of comment with given id, or -1 if absent
func (p *Pin) CommentIndex(commentID string) int {
	for i, c := range p.Comments {
		if c.ID == commentID {
			return i
		}
	}
	return -1
}

// RemoveComment removes the comment at position i keeping the order of the rest
func (p *Pin) RemoveComment(i int) {
	p.Comments = append(p.Comments[:i:i], p.Comments[i+1:]...)
}

// PinView is a pin with its owner populated, as returned by single-pin lookup
type PinView struct {
	Pin
	Owner *User `json:"owner"`
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// addID appends id unless already present, so that ids stays a set
func addID(ids []string, id string) []string {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}

// removeID drops every occurrence of id
func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return cp
}

// SortNewestFirst orders pins by creation time descending; ids break ties since they are k-sortable
func SortNewestFirst(pins []*Pin) {
	sort.SliceStable(pins, func(i, j int) bool {
		if !pins[i].CreatedAt.Equal(pins[j].CreatedAt) {
			return pins[i].CreatedAt.After(pins[j].CreatedAt)
		}
		return pins[i].ID > pins[j].ID
	})
}
