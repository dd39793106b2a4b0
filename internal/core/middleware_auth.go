package core

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"opsdeck/internal/types"
)

// API keys look like "odk_<prefix>_<secret>". The prefix is public and used
// for lookup; the full key is verified against the stored bcrypt hash so a
// database leak never exposes usable credentials.
const apiKeyScheme = "odk"

// authPublicPaths lists URL paths exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health": true,
}

// AuthMiddleware authenticates requests by API key.
//
//  1. Extracts the Bearer key from the Authorization header.
//  2. Parses the public prefix and looks up the key record.
//  3. Verifies the full key against the stored bcrypt hash.
//  4. Rejects revoked keys.
//  5. Injects a types.Actor (business scope) into the request context.
//
// Unknown prefixes and hash mismatches both return auth_api_key_invalid so
// responses do not reveal which prefixes exist. If the Keys field on Server
// is nil (tests that don't inject a source), the middleware passes through.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Keys == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r.Header.Get("Authorization"))
		if rawKey == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyMissing, "API key is required")
			return
		}

		prefix, ok := splitKeyPrefix(rawKey)
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "Invalid API key")
			return
		}

		key, found, err := s.Keys.GetByPrefix(r.Context(), prefix)
		if err != nil {
			s.Logger.Error("api key lookup failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			Error(w, r, err)
			return
		}
		if !found {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "Invalid API key")
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(rawKey)) != nil {
			s.Logger.Warn("api key hash mismatch",
				slog.String("prefix", prefix),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "Invalid API key")
			return
		}

		if key.RevokedAt != nil {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyRevoked, "API key has been revoked")
			return
		}

		actor := types.Actor{
			ID:         key.ID,
			Type:       types.ActorTypeAPIKey,
			BusinessID: key.BusinessID,
			Source:     r.Header.Get("X-Client-Source"),
		}
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
	})
}

// extractBearerToken parses an Authorization header value in the form
// "Bearer <token>" (scheme case-insensitive per RFC 7235). Returns empty
// string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// splitKeyPrefix extracts the public prefix from a raw API key of the form
// "odk_<prefix>_<secret>".
func splitKeyPrefix(rawKey string) (string, bool) {
	parts := strings.SplitN(rawKey, "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyScheme || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	return parts[1], true
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	Error(w, r, types.NewAppError(code, message, nil))
}
