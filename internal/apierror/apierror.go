// Package apierror defines the structured errors returned to clients before
// a stream is opened. Codes take the form "<type>:<surface>".
package apierror

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type Type string

const (
	BadRequest   Type = "bad_request"
	Unauthorized Type = "unauthorized"
	Forbidden    Type = "forbidden"
	NotFound     Type = "not_found"
	Conflict     Type = "conflict"
	RateLimit    Type = "rate_limit"
	Offline      Type = "offline"
)

type Surface string

const (
	SurfaceChat     Surface = "chat"
	SurfaceAuth     Surface = "auth"
	SurfaceAPI      Surface = "api"
	SurfaceStream   Surface = "stream"
	SurfaceDatabase Surface = "database"
	SurfaceHistory  Surface = "history"
	SurfaceDocument Surface = "document"

	// SurfaceActivateGateway marks an upstream billing precondition failure.
	SurfaceActivateGateway Surface = "activate_gateway"
)

// gatewayBillingMessage is the upstream text that marks a billing precondition failure.
const gatewayBillingMessage = "AI Gateway requires a valid credit card on file to service requests"

// Error is a client-facing failure.
type Error struct {
	Type    Type
	Surface Surface
	Cause   string
	err     error
}

// New builds an error from a "type:surface" code.
func New(code string, cause ...string) *Error {
	typ, surface, _ := strings.Cut(code, ":")
	e := &Error{Type: Type(typ), Surface: Surface(surface)}
	if len(cause) > 0 {
		e.Cause = cause[0]
	}
	return e
}

// Wrap attaches an internal error that is logged but never shown to the client.
func Wrap(code string, err error) *Error {
	e := New(code)
	e.err = err
	return e
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Code(), e.err)
	}
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s", e.Code(), e.Cause)
	}
	return e.Code()
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Code() string {
	return string(e.Type) + ":" + string(e.Surface)
}

// Status maps the error type onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Type {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimit:
		return http.StatusTooManyRequests
	case Offline:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing text for the code.
func (e *Error) Message() string {
	if e.Surface == SurfaceActivateGateway {
		return "AI Gateway requires a valid credit card on file to service requests. Please visit https://vercel.com/d?to=%2F%5Bteam%5D%2F%7E%2Fai%3Fmodal%3Dadd-credit-card to add a card and unlock your free credits."
	}
	if e.Surface == SurfaceDatabase {
		return "An error occurred while executing a database query."
	}
	switch e.Code() {
	case "bad_request:api":
		return "The request couldn't be processed. Please check your input and try again."
	case "unauthorized:auth":
		return "You need to sign in before continuing."
	case "forbidden:auth":
		return "Your account does not have access to this feature."
	case "rate_limit:chat":
		return "You have exceeded your maximum number of messages for the day. Please try again later."
	case "not_found:chat":
		return "The requested chat was not found. Please check the chat ID and try again."
	case "forbidden:chat":
		return "This chat belongs to another user. Please check the chat ID and try again."
	case "unauthorized:chat":
		return "You need to sign in to view this chat. Please sign in and try again."
	case "conflict:chat":
		return "A response is already being generated for this chat. Please wait for it to finish."
	case "offline:chat":
		return "We're having trouble sending your message. Please check your internet connection and try again."
	case "not_found:document":
		return "The requested document was not found. Please check the document ID and try again."
	case "forbidden:document":
		return "This document belongs to another user. Please check the document ID and try again."
	case "unauthorized:document":
		return "You need to sign in to view this document. Please sign in and try again."
	case "bad_request:document":
		return "The request to create or update the document was invalid. Please check your input and try again."
	}
	return "Something went wrong. Please try again later."
}

// Respond writes the error as JSON and aborts the gin chain. Database errors
// are logged and answered with a generic body.
func Respond(c *gin.Context, e *Error) {
	if e.Surface == SurfaceDatabase {
		slog.Error("database error", "code", e.Code(), "cause", e.Cause, "error", e.err)
		c.AbortWithStatusJSON(e.Status(), gin.H{"code": "", "message": "Something went wrong. Please try again later."})
		return
	}
	if e.err != nil {
		slog.Warn("request failed", "code", e.Code(), "error", e.err)
	}
	body := gin.H{"code": e.Code(), "message": e.Message()}
	if e.Cause != "" {
		body["cause"] = e.Cause
	}
	c.AbortWithStatusJSON(e.Status(), body)
}

// FromUpstream classifies a model or provider failure raised before streaming.
func FromUpstream(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if err != nil && strings.Contains(err.Error(), gatewayBillingMessage) {
		return Wrap("bad_request:activate_gateway", err)
	}
	return Wrap("offline:chat", err)
}
