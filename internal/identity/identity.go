// Package identity turns a request into the calling user. Credentials
// are checked upstream; this service only trusts the gateway header.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"privmsg/internal/apperr"
	"privmsg/internal/model"
	"privmsg/internal/store"
)

// HeaderUID carries the authenticated uid set by the gateway.
const HeaderUID = "X-User-Uid"

// Resolver identifies the caller of a request. ResolveUpgrade is only
// used on the websocket route.
type Resolver interface {
	Resolve(r *http.Request) (model.Caller, error)
	ResolveUpgrade(r *http.Request) (model.Caller, error)
}

type UserStore interface {
	User(ctx context.Context, uid string) (model.User, error)
}

// HeaderResolver reads HeaderUID and looks the role up in the users
// table.
type HeaderResolver struct {
	users UserStore
}

// NewHeaderResolver creates a resolver backed by users.
func NewHeaderResolver(users UserStore) *HeaderResolver {
	return &HeaderResolver{users: users}
}

// Resolve trusts HeaderUID only.
func (h *HeaderResolver) Resolve(r *http.Request) (model.Caller, error) {
	return h.lookup(r.Context(), r.Header.Get(HeaderUID))
}

// ResolveUpgrade also accepts the uid query parameter, but only on a
// websocket handshake.
func (h *HeaderResolver) ResolveUpgrade(r *http.Request) (model.Caller, error) {
	uid := r.Header.Get(HeaderUID)
	if strings.TrimSpace(uid) == "" && websocket.IsWebSocketUpgrade(r) {
		// ブラウザのWebSocketはヘッダーを付けられないのでクエリも見る
		uid = r.URL.Query().Get("uid")
	}
	return h.lookup(r.Context(), uid)
}

func (h *HeaderResolver) lookup(ctx context.Context, uid string) (model.Caller, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return model.Caller{}, apperr.ErrUnauthenticated
	}
	u, err := h.users.User(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return model.Caller{}, apperr.ErrUnauthenticated
	}
	if err != nil {
		return model.Caller{}, apperr.Server("resolve caller", err)
	}
	return model.Caller{UID: u.UID, Role: u.Role}, nil
}
