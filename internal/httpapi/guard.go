package httpapi

import (
	"errors"
	"net/http"

	"cajapos/backend/internal/authz"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/service"
)

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

// guard admits the request only when the caller may perform action on the
// sales resource. The engine behind it does no authorization of its own.
func (a *API) guard(action authz.Action, next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := service.ActorFromContext(r.Context())
		allowed, err := a.authz.Allowed(r.Context(), actor.BusinessID, actor.UserID, domain.ResourceSales, action)
		if err != nil {
			a.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		if !allowed {
			a.writeError(w, http.StatusForbidden, errors.New("not allowed to "+action.String()+" sales"))
			return
		}
		next(w, r)
	})
}

type invalidateRequest struct {
	UserID string `json:"user_id"`
}

// handleInvalidatePermissions drops a cached permission set. Callers may
// always drop their own; dropping someone else's needs full access.
func (a *API) handleInvalidatePermissions(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())

	var req invalidateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	target := req.UserID
	if target == "" {
		target = actor.UserID
	}
	if target != actor.UserID {
		full, err := a.authz.HasFullAccess(r.Context(), actor.BusinessID, actor.UserID)
		if err != nil {
			a.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		if !full {
			a.writeError(w, http.StatusForbidden, errors.New("full access required"))
			return
		}
	}

	if err := a.authz.Invalidate(r.Context(), actor.BusinessID, target); err != nil {
		a.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": target})
}
