package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/apperror"
	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/authorization"
	"github.com/smallbiznis/storeadmin/internal/chatbot"
	"github.com/smallbiznis/storeadmin/internal/ratelimit"
	"github.com/smallbiznis/storeadmin/internal/records"
	salesdomain "github.com/smallbiznis/storeadmin/internal/sales/domain"
	serviceorderdomain "github.com/smallbiznis/storeadmin/internal/serviceorder/domain"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/internal/wizard"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var recordErr *records.ValidationError
	if errors.As(err, &recordErr) {
		fields := make([]ValidationError, 0, len(recordErr.Fields))
		for _, f := range recordErr.Fields {
			fields = append(fields, ValidationError{Field: f.Field, Code: f.Code, Message: f.Message})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fields,
		}
	}

	if code, ok := domainValidationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: safeMessage(err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests, try again later",
		}
	case errors.Is(err, ratelimit.ErrLocked):
		return http.StatusConflict, errorPayload{
			Type:    "operation_in_progress",
			Message: "another operation is running for this store",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: safeMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, salesdomain.ErrReceiptDisabled),
		errors.Is(err, serviceorderdomain.ErrReceiptDisabled):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, tenantdomain.ErrCopyIncomplete):
		return http.StatusInternalServerError, errorPayload{
			Type:    "copy_incomplete",
			Message: safeMessage(err),
		}
	}

	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: safeMessage(err),
		}
	case apperror.KindInvalidReference:
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_reference",
			Message: "invalid reference",
		}
	case apperror.KindNotFound:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case apperror.KindPermissionDenied:
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: safeMessage(err),
		}
	case apperror.KindConflict:
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case apperror.KindExternalService:
		return http.StatusBadGateway, errorPayload{
			Type:    "external_service",
			Message: "upstream service failed",
		}
	case apperror.KindUnavailable:
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, string(apperror.KindOf(err))
	}
	return payload.Type, firstCode(payload)
}

func firstCode(p errorPayload) string {
	if len(p.Errors) > 0 {
		return p.Errors[0].Code
	}
	return p.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var domainValidationErrors = []error{
	ErrInvalidRequest,
	records.ErrUnknownKind,
	tenantdomain.ErrInvalidStoreID,
	tenantdomain.ErrInvalidName,
	tenantdomain.ErrInvalidEmail,
	tenantdomain.ErrInvalidDomain,
	tenantdomain.ErrLastAdmin,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	salesdomain.ErrTooManyItems,
	salesdomain.ErrProductInactive,
	salesdomain.ErrInsufficientStock,
	salesdomain.ErrInvalidCoupon,
	salesdomain.ErrCouponExpired,
	salesdomain.ErrCouponExhausted,
	salesdomain.ErrMinimumPurchase,
	serviceorderdomain.ErrInvalidStatus,
	wizard.ErrUnknownKind,
	wizard.ErrInvalidDraft,
	wizard.ErrNoDrafts,
	wizard.ErrNothingSelected,
}

func domainValidationCode(err error) (string, bool) {
	for _, target := range domainValidationErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, tenantdomain.ErrTenantExists),
		errors.Is(err, tenantdomain.ErrDomainTaken),
		errors.Is(err, serviceorderdomain.ErrAlreadyClosed),
		errors.Is(err, wizard.ErrInvalidTransition):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, tenantdomain.ErrDomainNotFound),
		errors.Is(err, tenantdomain.ErrCloneSourceEmpty),
		errors.Is(err, chatbot.ErrNotConfigured),
		errors.Is(err, chatbot.ErrVersionNotFound),
		errors.Is(err, wizard.ErrSessionNotFound),
		errors.Is(err, wizard.ErrDraftNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if field, ok := strings.CutPrefix(code, "invalid_"); ok {
		return field
	}
	return ""
}

// safeMessage strips wrapped causes; only the outermost text of an apperror or a sentinel reaches clients.
func safeMessage(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}
