package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dossiers/dossiers/internal/platform/auth"
)

// AuditEntry records who touched which medical record, and how.
type AuditEntry struct {
	RequestID string
	UserID    string
	UserEmail string
	Action    string
	Route     string
	RecordID  string
	Status    int
}

// Audit logs one "record_access" line per request of the group it is
// installed on. It must run after authentication so the operator is known.
// Record identifiers come from the :id and :patientId route parameters.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			entry := auditEntry(c, err)
			evt := logger.Info()
			if entry.Status == http.StatusForbidden || entry.Status == http.StatusUnauthorized {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("user_email", entry.UserEmail).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Str("record_id", entry.RecordID).
				Int("status", entry.Status).
				Msg("record_access")

			return err
		}
	}
}

func auditEntry(c echo.Context, err error) AuditEntry {
	entry := AuditEntry{
		RequestID: GetRequestID(c),
		Action:    actionOf(c.Request().Method),
		Route:     c.Path(),
		Status:    c.Response().Status,
	}
	if u := auth.UserFromContext(c.Request().Context()); u != nil {
		entry.UserID = u.ID
		entry.UserEmail = u.Email
	}
	if id := c.Param("id"); id != "" {
		entry.RecordID = id
	} else {
		entry.RecordID = c.Param("patientId")
	}
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			entry.Status = he.Code
		} else {
			entry.Status = http.StatusInternalServerError
		}
	}
	return entry
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}
