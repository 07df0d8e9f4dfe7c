package handler

import (
	"net/http"
)

// HandleWebSocket handles GET /ws
// 接続中はオンライン扱いになり、新着メッセージがプッシュされる
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /ws]"

	caller, err := anonymousIfUnknown(h.Identity.ResolveUpgrade(r))
	if err != nil {
		h.writeError(w, route, err)
		return
	}
	if err := h.Chat.Connect(r.Context(), caller); err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Logger.Debug(route+" New WebSocket connection", "uid", caller.UID)
	h.Hub.ServeWS(w, r, caller.UID)
	h.Logger.Debug(route+" Client disconnected", "uid", caller.UID)
}
