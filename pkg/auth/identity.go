package auth

import (
	"context"
	"net/http"
	"strings"

	"collabchat/pkg/errs"
	"collabchat/pkg/models"
	"collabchat/pkg/utils"
)

// Identity resolution trusts the fronting gateway: it terminates real
// authentication and forwards the caller as headers. This layer validates
// shape, injects the identity into the request context and applies
// per-participant rate limiting.

const (
	HeaderParticipantID = "X-Participant-Id"
	HeaderRole          = "X-Role"
	HeaderDisplayName   = "X-Display-Name"
)

type ctxIdentityKey struct{}

// Identity is the resolved caller of a request.
type Identity struct {
	ParticipantID string
	Role          models.Role
	DisplayName   string
}

// Ref converts the identity to a participant reference.
func (id Identity) Ref() models.ParticipantRef {
	return models.NewParticipantRef(id.ParticipantID, id.Role)
}

// Sender converts the identity to a message sender.
func (id Identity) Sender() models.Sender {
	return models.Sender{ParticipantRef: id.Ref(), DisplayName: id.DisplayName}
}

// FromHeaders parses the gateway identity headers.
func FromHeaders(get func(string) string) (Identity, error) {
	pid := strings.TrimSpace(get(HeaderParticipantID))
	if pid == "" {
		return Identity{}, errs.Forbidden("missing " + HeaderParticipantID + " header")
	}
	role := models.Role(strings.TrimSpace(get(HeaderRole)))
	if !models.ValidRole(role) {
		return Identity{}, errs.Forbidden("missing or invalid " + HeaderRole + " header")
	}
	name := strings.TrimSpace(get(HeaderDisplayName))
	if name == "" {
		name = pid
	}
	return Identity{ParticipantID: pid, Role: role, DisplayName: name}, nil
}

// FromContext returns the identity injected by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentityKey{}).(Identity)
	return id, ok
}

// WithIdentity injects an identity; used by the websocket endpoint and
// tests, which bypass the HTTP middleware.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, id)
}

// Middleware resolves the caller identity and rate-limits per
// participant before passing the request on.
func Middleware(limiter *LimiterPool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := FromHeaders(r.Header.Get)
			if err != nil {
				utils.JSONErrorFrom(w, err)
				return
			}
			if limiter != nil && !limiter.Allow(id.ParticipantID) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
