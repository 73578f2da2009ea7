package errors

import (
	"errors"
	"net/http"
	"strings"
)

type ErrCode string

const (
	ErrCodeServiceFailure    ErrCode = "ServiceFailure"
	ErrCodeAPIBadRequest     ErrCode = "BadRequest"
	ErrCodeOversized         ErrCode = "Oversized"
	ErrCodeTooManyRequests   ErrCode = "TooManyRequests"
	ErrCodeConflict          ErrCode = "Conflict"
	ErrCodeNotFound          ErrCode = "NotFound"
	ErrCodeUnauthenticated   ErrCode = "Unauthenticated"
	ErrCodeInvalidCredential ErrCode = "InvalidCredential"
	ErrCodeExpiredCredential ErrCode = "ExpiredCredential"
	ErrCodeUnknownSubject    ErrCode = "UnknownSubject"
	ErrCodeInternalAuth      ErrCode = "InternalAuthError"
	ErrCodeNotOwner          ErrCode = "NotOwner"
	ErrCodeNotCommentOwner   ErrCode = "NotCommentOwner"
	ErrCodeDuplicateEmail    ErrCode = "DuplicateEmail"
	ErrCodeUnknownEmail      ErrCode = "UnknownEmail"
	ErrCodeWrongPassword     ErrCode = "WrongPassword"
	ErrCodeAlreadyLiked      ErrCode = "AlreadyLiked"
	ErrCodeNotLiked          ErrCode = "NotLiked"
	ErrCodeSelfFollow        ErrCode = "SelfFollow"
	ErrCodeUploadFailed      ErrCode = "UploadFailed"
)

// Err is the error type shared by stores, services and handlers. Its message is safe to show to
// clients; the cause chain is for server-side logs only.
type Err struct {
	Code  ErrCode
	msg   string
	cause error
}

func (e *Err) Error() string {
	return e.msg
}

// Trace returns the chain of messages from e down to its root cause
func (e *Err) Trace() string {
	b := &strings.Builder{}
	b.WriteString(e.msg)
	indent := "\n\t"
	err := errors.Unwrap(e)
	for err != nil {
		b.WriteString(indent)
		b.WriteString("Caused by: ")
		b.WriteString(err.Error())
		indent += "\t"
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (e *Err) Unwrap() error {
	return e.cause
}

func (e *Err) WithCause(c error) *Err {
	e.cause = c
	return e
}

func (e *Err) WithMsg(m string) *Err {
	e.msg = m
	return e
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrCode) bool {
	var e *Err
	for err != nil {
		if errors.As(err, &e) {
			if e.Code == code {
				return true
			}
			err = e.cause
			continue
		}
		return false
	}
	return false
}

// prefer NewXXX(msg).WithCause(err) over NewXXX(msg, err) since the latter's method signature has less
// readability - user needs to look up docs to know the 2nd param is for cause
func newErr(c ErrCode, m string) *Err {
	return &Err{Code: c, msg: m}
}

func NewServiceFailure(m string) *Err { return newErr(ErrCodeServiceFailure, m) }

func NewNotFound(m string) *Err { return newErr(ErrCodeNotFound, m) }

func NewBadInput(m string) *Err { return newErr(ErrCodeAPIBadRequest, m) }

func NewOversized() *Err { return newErr(ErrCodeOversized, "data oversized") }

func NewTooManyRequests() *Err {
	return newErr(ErrCodeTooManyRequests, "Too many requests. Please try again later.")
}

func NewConflict(m string) *Err { return newErr(ErrCodeConflict, m) }

func NewUnauthenticated() *Err {
	return newErr(ErrCodeUnauthenticated, "Please login to access this resource.")
}

func NewInvalidCredential() *Err {
	return newErr(ErrCodeInvalidCredential, "Invalid token. Please log in again.")
}

func NewExpiredCredential() *Err {
	return newErr(ErrCodeExpiredCredential, "Token has expired. Please log in again.")
}

func NewUnknownSubject() *Err { return newErr(ErrCodeUnknownSubject, "User not found.") }

func NewInternalAuth() *Err {
	return newErr(ErrCodeInternalAuth, "An error occurred during authentication.")
}

func NewNotOwner() *Err { return newErr(ErrCodeNotOwner, "Unauthorized") }

func NewNotCommentOwner() *Err {
	return newErr(ErrCodeNotCommentOwner, "You are not the owner of this comment.")
}

func NewDuplicateEmail() *Err {
	return newErr(ErrCodeDuplicateEmail, "Already have an account with this email")
}

func NewUnknownEmail() *Err { return newErr(ErrCodeUnknownEmail, "No user with this email") }

func NewWrongPassword() *Err { return newErr(ErrCodeWrongPassword, "Wrong password") }

func NewAlreadyLiked() *Err { return newErr(ErrCodeAlreadyLiked, "You have already liked this pin.") }

func NewNotLiked() *Err { return newErr(ErrCodeNotLiked, "You haven't liked this pin yet.") }

func NewSelfFollow() *Err { return newErr(ErrCodeSelfFollow, "You can't follow yourself") }

func NewUploadFailed() *Err { return newErr(ErrCodeUploadFailed, "error uploading image") }

// StatusCode returns the http response status code associated with the Err value
func (e *Err) StatusCode() int {
	switch e.Code {
	case ErrCodeAPIBadRequest, ErrCodeDuplicateEmail, ErrCodeUnknownEmail, ErrCodeWrongPassword,
		ErrCodeAlreadyLiked, ErrCodeNotLiked, ErrCodeSelfFollow:
		return http.StatusBadRequest
	case ErrCodeUnauthenticated, ErrCodeInvalidCredential, ErrCodeExpiredCredential:
		return http.StatusUnauthorized
	case ErrCodeNotOwner, ErrCodeNotCommentOwner:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeUnknownSubject:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeOversized:
		return http.StatusRequestEntityTooLarge
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
