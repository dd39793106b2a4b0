// Package handlers contains the HTTP handler implementations for the OpsDeck
// API. Handlers depend on locally-defined interfaces mirroring the concrete
// services and repositories, so tests can inject fakes without touching real
// stores.
package handlers

import (
	"net/http"
	"strconv"

	"opsdeck/internal/core"
	"opsdeck/internal/types"
)

// defaultListLimit caps list endpoints when the client does not ask for a
// specific page size; maxListLimit is the hard ceiling.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// requireActor pulls the authenticated Actor from the request context. When
// absent (route mounted without auth middleware) it writes a 401 and returns
// false.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthKeyMissing,
			"Authentication required",
			nil,
		))
		return types.Actor{}, false
	}
	return actor, true
}

// clampLimit parses a limit query value with the standard default and cap.
// Unparseable or non-positive values fall back to the default.
func clampLimit(raw string) int {
	limit := defaultListLimit
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
