package resource

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound: the root entity addressed by id does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUnprocessableRelation: a relationship in a write body does not
	// resolve, or its arity does not match the relation's cardinality.
	ErrUnprocessableRelation = errors.New("unprocessable relation")
	// ErrSchemaContract: a field or relation absent from the entity
	// descriptor reached the compiler. Upstream validation should have
	// rejected it, so this is an internal error.
	ErrSchemaContract = errors.New("schema contract violation")
	// ErrInvalidQuery: the request failed validation before reaching the engine.
	ErrInvalidQuery = errors.New("invalid query")
)

// ErrorDetail localizes one problem for the client.
type ErrorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

// Error is a typed engine error. It unwraps to its Kind so callers can use
// errors.Is(err, ErrNotFound) and friends.
type Error struct {
	Kind    error
	Details []ErrorDetail
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		msgs = append(msgs, d.Message)
	}
	if len(msgs) == 0 {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() error { return e.Kind }

// NotFound reports a missing resource of type typ.
func NotFound(typ string, id any) *Error {
	return &Error{
		Kind: ErrNotFound,
		Details: []ErrorDetail{{
			Code:    "not_found",
			Message: fmt.Sprintf("resource %s with id %s does not exist", typ, FormatID(id)),
			Path:    []string{"id"},
		}},
	}
}

// UnprocessableRelation reports a relationship that cannot be applied.
func UnprocessableRelation(path []string, format string, args ...any) *Error {
	return &Error{
		Kind: ErrUnprocessableRelation,
		Details: []ErrorDetail{{
			Code:    "unprocessable_relation",
			Message: fmt.Sprintf(format, args...),
			Path:    path,
		}},
	}
}

// ContractViolation reports a schema descriptor lookup miss.
func ContractViolation(format string, args ...any) *Error {
	return &Error{
		Kind: ErrSchemaContract,
		Details: []ErrorDetail{{
			Code:    "schema_contract",
			Message: fmt.Sprintf(format, args...),
		}},
	}
}

// InvalidQuery collects validation failures of a request.
func InvalidQuery(details ...ErrorDetail) *Error {
	return &Error{Kind: ErrInvalidQuery, Details: details}
}

// Details extracts the error details of err, if it is an *Error.
func Details(err error) []ErrorDetail {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
