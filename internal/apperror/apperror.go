// Package apperror classifies errors from every layer into the closed set of kinds the HTTP layer understands.
package apperror

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"gorm.io/gorm"
)

type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalidReference Kind = "invalid_reference"
	KindExternalService  Kind = "external_service"
	KindValidation       Kind = "validation"
	KindConflict         Kind = "conflict"
	KindUnavailable      Kind = "unavailable"
	KindInternal         Kind = "internal"
)

var (
	ErrNotFound         = errors.New("not_found")
	ErrPermissionDenied = errors.New("permission_denied")
	ErrExternalService  = errors.New("external_service")
	ErrValidation       = errors.New("validation")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("unavailable")
)

// Error carries an explicit kind and a message safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...any) error {
	return New(KindValidation, format, args...)
}

var classes = []struct {
	target error
	kind   Kind
}{
	{docstore.ErrInvalidReference, KindInvalidReference},
	{docstore.ErrNotFound, KindNotFound},
	{ErrNotFound, KindNotFound},
	{gorm.ErrRecordNotFound, KindNotFound},
	{docstore.ErrPermissionDenied, KindPermissionDenied},
	{ErrPermissionDenied, KindPermissionDenied},
	{docstore.ErrAlreadyExists, KindConflict},
	{docstore.ErrAborted, KindConflict},
	{ErrConflict, KindConflict},
	{gorm.ErrDuplicatedKey, KindConflict},
	{docstore.ErrBatchTooLarge, KindValidation},
	{docstore.ErrEmptyBatch, KindValidation},
	{ErrValidation, KindValidation},
	{ErrExternalService, KindExternalService},
	{docstore.ErrUnavailable, KindUnavailable},
	{docstore.ErrClosed, KindUnavailable},
	{ErrUnavailable, KindUnavailable},
	{context.DeadlineExceeded, KindUnavailable},
}

// KindOf returns the kind of err. An explicit *Error wins; otherwise known sentinels are matched and
// everything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	for _, c := range classes {
		if errors.Is(err, c.target) {
			return c.kind
		}
	}
	return KindInternal
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
