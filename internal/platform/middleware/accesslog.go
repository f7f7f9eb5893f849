package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AccessEntry captures who accessed what, when, from where, and the action
// taken. Every request against the API surface produces one entry.
type AccessEntry struct {
	UserID     string
	UserRoles  []string
	Entity     string
	Action     string // read, create, update, delete, search
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AccessRecorder persists access entries. Decoupling the middleware from the
// concrete store lets tests provide a mock implementation.
type AccessRecorder interface {
	RecordAccess(entry AccessEntry) error
}

// AccessRecorderFunc is a function adapter for AccessRecorder.
type AccessRecorderFunc func(entry AccessEntry) error

func (f AccessRecorderFunc) RecordAccess(entry AccessEntry) error {
	return f(entry)
}

// AccessLog returns middleware that records every request under /api/v1/*:
// the authenticated user, the entity collection addressed by the path, and
// the action implied by the HTTP method. Regulated-data access must leave a
// trail even for reads, which the write-focused entity audit trail does not
// cover.
//
// If no AccessRecorder is provided, entries fall back to structured zerolog
// output.
func AccessLog(logger zerolog.Logger, recorders ...AccessRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			userID, _ := c.Get("user_id").(string)
			roles, _ := c.Get("roles").([]string)
			rid, _ := c.Get("request_id").(string)

			entry := AccessEntry{
				UserID:     userID,
				UserRoles:  roles,
				Entity:     entityFromPath(path),
				Action:     actionFromMethod(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				RequestID:  rid,
				StatusCode: c.Response().Status,
			}

			recorded := false
			for _, rec := range recorders {
				if rec == nil {
					continue
				}
				if recErr := rec.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("path", path).Msg("access recorder failed")
				} else {
					recorded = true
				}
			}
			if !recorded {
				logger.Info().
					Str("user_id", entry.UserID).
					Strs("roles", entry.UserRoles).
					Str("entity", entry.Entity).
					Str("action", entry.Action).
					Str("path", entry.Path).
					Int("status", entry.StatusCode).
					Str("request_id", entry.RequestID).
					Msg("access")
			}

			return err
		}
	}
}

// entityFromPath extracts the entity collection segment from an API path,
// e.g. /api/v1/submissions/123/decision -> "submissions".
func entityFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

func actionFromMethod(method string) string {
	switch method {
	case "GET", "HEAD":
		return "read"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
