package finAuth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess    = "login_success"
	auditEventLoginFailure    = "login_failure"
	auditEventRegisterSuccess = "register_success"
	auditEventRegisterFailure = "register_failure"
	auditEventRefreshSuccess  = "refresh_success"
	auditEventRefreshFailure  = "refresh_failure"
	auditEventSessionExpired  = "session_expired"
	auditEventLogout          = "logout"
)

// AuditErrorCode is the stable error classification written to
// AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrValidation         AuditErrorCode = "validation_failed"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrRefreshRejected    AuditErrorCode = "refresh_rejected"
	auditErrNetwork            AuditErrorCode = "network"
	auditErrMalformed          AuditErrorCode = "malformed_response"
	auditErrTokenStore         AuditErrorCode = "token_store"
	auditErrBackend            AuditErrorCode = "backend_error"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	var se *StatusError
	switch {
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRegistrationInvalid):
		return auditErrValidation
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrRefreshFailed):
		return auditErrRefreshRejected
	case errors.Is(err, ErrMalformedResponse):
		return auditErrMalformed
	case errors.Is(err, ErrTokenStore):
		return auditErrTokenStore
	case errors.As(err, &se):
		return auditErrBackend
	default:
		return auditErrInternal
	}
}

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	userID int64,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		Username:  username,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}
