package dashauth

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/dashauth/internal/audit"
)

// AuditErrorCode is the stable error label written to AuditEvent.Reason.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotPreauthorized   AuditErrorCode = "not_preauthorized"
	auditErrNotFound           AuditErrorCode = "user_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrPersistence        AuditErrorCode = "persistence_failed"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	kind internalaudit.Kind,
	ok bool,
	subject string,
	actor string,
	err error,
	detail func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	ev := internalaudit.NewEvent(e.clock.Now(), kind, subject, actor, ok)
	ev.RemoteIP = clientIPFromContext(ctx)
	ev.Reason = string(auditErrorCode(err))
	if detail != nil {
		ev = ev.WithDetail(detail())
	}

	e.audit.Emit(ctx, ev)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrStorePersistence):
		return auditErrPersistence
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDuplicateUsername):
		return auditErrDuplicate
	case errors.Is(err, ErrNotPreauthorized):
		return auditErrNotPreauthorized
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrWeakPassword):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrSamePassword):
		return auditErrPasswordReuse
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	default:
		return auditErrInternal
	}
}
