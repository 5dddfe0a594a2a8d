package soapbox

import (
	"strings"

	"github.com/juju/errors"

	"github.com/reoring/soapbox/wiretype"
)

// Fault codes. Codes are dotted: the first segment is the fault class
// (Client or Server), the rest narrows it down.
const (
	CodeClient = "Client"
	CodeServer = "Server"

	FaultValidation       = "Client.ValidationError"
	FaultArgument         = "Client.ArgumentError"
	FaultResourceNotFound = "Client.ResourceNotFound"
	FaultMethodNotFound   = "Client.MethodNotFound"
	FaultRequestTooLong   = "Client.RequestTooLong"
	FaultNotAllowed       = "Client.NotAllowed"
	FaultServer           = CodeServer
)

// Issue and Issues are the validation detail model shared by every protocol.
type (
	Issue  = wiretype.Issue
	Issues = wiretype.Issues
)

// Fault is the uniform representation of a recognized error outcome.
type Fault struct {
	Code    string
	Message string
	// Actor names the node that raised the fault (SOAP faultactor / Role).
	Actor string
	// Lang tags Message; empty means "en".
	Lang string
	// Detail is an optional native value. When DetailType is set the value
	// is encoded against it, otherwise it is rendered generically.
	Detail     any
	DetailType wiretype.Type

	cause error
}

// NewFault returns a fault with the given dotted code and message.
func NewFault(code, message string) *Fault {
	return &Fault{Code: code, Message: message}
}

// ClientFault returns a "Client.{sub}" fault.
func ClientFault(sub, message string) *Fault {
	return &Fault{Code: joinCode(CodeClient, sub), Message: message}
}

// ServerFault returns a "Server.{sub}" fault.
func ServerFault(sub, message string) *Fault {
	return &Fault{Code: joinCode(CodeServer, sub), Message: message}
}

func joinCode(class, sub string) string {
	if sub == "" {
		return class
	}
	return class + "." + sub
}

func (f *Fault) Error() string {
	if f.Message == "" {
		return f.Code
	}
	return f.Code + ": " + f.Message
}

// Unwrap returns the error the fault was derived from, if any.
func (f *Fault) Unwrap() error { return f.cause }

// Is matches another fault by code, so errors.Is(err, NewFault(c, "")) works.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Code == f.Code
}

// WithDetail returns f with a typed detail attached.
func (f *Fault) WithDetail(t wiretype.Type, v any) *Fault {
	f.DetailType, f.Detail = t, v
	return f
}

// Class is the first segment of the code.
func (f *Fault) Class() string {
	if i := strings.IndexByte(f.Code, '.'); i >= 0 {
		return f.Code[:i]
	}
	return f.Code
}

func (f *Fault) IsClient() bool { return f.Class() == CodeClient }
func (f *Fault) IsServer() bool { return f.Class() == CodeServer }

// HasCode reports whether f's code equals prefix or starts with prefix
// followed by a dot.
func (f *Fault) HasCode(prefix string) bool {
	return f.Code == prefix || strings.HasPrefix(f.Code, prefix+".")
}

// Redirect is a non-error outcome carrying a target location.
type Redirect struct {
	Location string
	// Status defaults to 302 when zero.
	Status int
}

func (r *Redirect) Error() string { return "redirect to " + r.Location }

// FaultFromError converts any error into a Fault. Faults pass through,
// Issues become validation faults carrying the issues as detail, and juju
// error kinds map onto the client fault codes. Everything else becomes a
// Server fault whose message does not leak the cause.
func FaultFromError(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if iss, ok := wiretype.AsIssues(err); ok {
		return &Fault{
			Code:    FaultValidation,
			Message: iss.Error(),
			Detail:  IssueDetail(iss),
			cause:   err,
		}
	}
	code := FaultServer
	switch {
	case errors.Is(err, errors.NotFound), errors.Is(err, errors.UserNotFound):
		code = FaultResourceNotFound
	case errors.Is(err, errors.NotValid), errors.Is(err, errors.BadRequest):
		code = FaultArgument
	case errors.Is(err, errors.Forbidden), errors.Is(err, errors.Unauthorized),
		errors.Is(err, errors.NotSupported), errors.Is(err, errors.MethodNotAllowed):
		code = FaultNotAllowed
	}
	if code == FaultServer {
		return &Fault{Code: code, Message: "internal server error", cause: err}
	}
	return &Fault{Code: code, Message: err.Error(), cause: err}
}

// IssueDetail renders issues as a generic detail value.
func IssueDetail(iss Issues) map[string]any {
	items := make([]any, 0, len(iss))
	for _, it := range iss {
		items = append(items, map[string]any{
			"path":    it.Path,
			"code":    it.Code,
			"message": it.Message,
		})
	}
	return map[string]any{"issue": items}
}
