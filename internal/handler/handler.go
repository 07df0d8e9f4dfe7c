package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"privmsg/internal/chat"
	"privmsg/internal/identity"
	"privmsg/internal/realtime"
)

// Handler holds application dependencies
type Handler struct {
	Chat     *chat.Service
	Identity identity.Resolver
	Hub      *realtime.Hub
	Logger   *log.Logger
}

// New creates a new Handler with the given dependencies
func New(svc *chat.Service, ident identity.Resolver, hub *realtime.Hub, logger *log.Logger) *Handler {
	return &Handler{
		Chat:     svc,
		Identity: ident,
		Hub:      hub,
		Logger:   logger.With("component", "http"),
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// REST API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/conversations", h.ListConversations).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", h.ListMessages).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}/read", h.MarkRead).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}", h.DeleteConversation).Methods("DELETE")
	api.HandleFunc("/messages", h.CreateMessage).Methods("POST")
	api.HandleFunc("/users/search", h.SearchUsers).Methods("GET")
	api.HandleFunc("/permission", h.CheckPermission).Methods("GET")
	api.HandleFunc("/notices", h.ListNotices).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	return r
}
