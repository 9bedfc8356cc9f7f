package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type ctxKey string

const ctxPrincipalKey ctxKey = "analytics_principal"

// Envelope is what we store with every event.
type Envelope struct {
	Principal string
	SessionID string
	Platform  string
}

// FromRequest extracts envelope fields from the request.
// Backend-trustable fields only.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	switch platform {
	case "ios", "android", "web":
	default:
		platform = "unknown"
	}

	return Envelope{
		SessionID: strings.TrimSpace(r.Header.Get("X-Session-Id")),
		Platform:  platform,
	}
}

func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, principal)
}

func PrincipalFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxPrincipalKey).(string)
	return v, ok && v != ""
}

// SourceEventKeyFromRequest returns the client-provided idempotency key, if
// any. A duplicated key makes the insert a no-op.
func SourceEventKeyFromRequest(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Source-Event-Key"))
}

// Log inserts one analytics event and reports the insert error, if any.
// Callers on the core flow discard it; the caller passes sanitized props only.
func Log(ctx context.Context, db *sql.DB, env Envelope, eventName string, props any, sourceEventKey string) error {
	if eventName == "" {
		return nil
	}

	principal := env.Principal
	if principal == "" {
		if p, ok := PrincipalFromContext(ctx); ok {
			principal = p
		} else {
			return nil
		}
	}

	b, err := json.Marshal(props)
	if err != nil {
		return err
	}

	if sourceEventKey != "" {
		_, err := db.ExecContext(ctx, `
			INSERT INTO analytics_events (event_name, event_time, principal, source_event_key, properties)
			VALUES ($1, $2, $3, $4, $5::jsonb)
			ON CONFLICT (source_event_key) DO NOTHING
		`, eventName, time.Now().UTC(), principal, sourceEventKey, string(b))
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO analytics_events (event_name, event_time, principal, properties)
		VALUES ($1, $2, $3, $4::jsonb)
	`, eventName, time.Now().UTC(), principal, string(b))

	return err
}
