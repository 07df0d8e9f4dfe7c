package handler

import (
	"net/http"
	"strconv"
)

const defaultNotices = 20

// SearchUsers handles GET /api/users/search
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /api/users/search]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	users, err := h.Chat.SearchUsers(r.Context(), caller, r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CheckPermission handles GET /api/permission
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /api/permission]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	decision, err := h.Chat.CheckPermission(r.Context(), caller, r.URL.Query().Get("recipientUid"))
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// ListNotices handles GET /api/notices
func (h *Handler) ListNotices(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /api/notices]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	limit := defaultNotices
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, route, badRequest("invalid limit"))
			return
		}
		limit = min(n, maxTake)
	}

	notices, err := h.Chat.Notices(r.Context(), caller, limit)
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	writeJSON(w, http.StatusOK, notices)
}
