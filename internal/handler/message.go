package handler

import (
	"encoding/json"
	"net/http"

	"privmsg/internal/chat"
)

// CreateMessage handles POST /api/messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	const route = "[POST /api/messages]"

	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	// リクエストボディサイズを1MBに制限
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var in chat.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, route, badRequest("Invalid request body"))
		return
	}

	res, err := h.Chat.Send(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Logger.Info(route+" ✅ Created message", "message", res.Message.ID, "conversation", res.ConversationID, "sender", caller.UID)
	writeJSON(w, http.StatusCreated, res)
}
