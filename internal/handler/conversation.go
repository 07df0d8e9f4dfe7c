package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"privmsg/internal/directory"
)

// ListConversations handles GET /api/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /api/conversations]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	skip, take, err := pageParams(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	since, err := sinceParam(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	list, err := h.Chat.ListConversations(r.Context(), caller, directory.ListQuery{Since: since, Skip: skip, Take: take})
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Logger.Debug(route+" ✅ Listed", "uid", caller.UID, "count", len(list.Items), "total", list.Total)
	writeJSON(w, http.StatusOK, list)
}

// ListMessages handles GET /api/conversations/{id}/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /api/conversations/{id}/messages]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	id, err := idParam(mux.Vars(r))
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	skip, take, err := pageParams(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	page, err := h.Chat.ListMessages(r.Context(), caller, id, skip, take)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Logger.Debug(route+" ✅ Returned messages", "conversation", id, "uid", caller.UID, "count", len(page.Messages))
	writeJSON(w, http.StatusOK, page)
}

// MarkRead handles POST /api/conversations/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	const route = "[POST /api/conversations/{id}/read]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	id, err := idParam(mux.Vars(r))
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	if err := h.Chat.MarkRead(r.Context(), caller, id); err != nil {
		h.writeError(w, route, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteConversation handles DELETE /api/conversations/{id}
// 相手側の表示には影響しない
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	const route = "[DELETE /api/conversations/{id}]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	id, err := idParam(mux.Vars(r))
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	if err := h.Chat.DeleteConversation(r.Context(), caller, id); err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Logger.Info(route+" ✅ Hidden", "conversation", id, "uid", caller.UID)
	w.WriteHeader(http.StatusNoContent)
}
