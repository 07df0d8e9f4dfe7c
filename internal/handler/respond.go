package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"privmsg/internal/apperr"
	"privmsg/internal/model"
)

const (
	defaultTake = 20
	maxTake     = 100
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindSystemDisabled:
		return http.StatusServiceUnavailable
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindInvalidRequest:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status and a {"error", "code"} body. Server
// errors are logged with their cause and answered generically.
func (h *Handler) writeError(w http.ResponseWriter, route string, err error) {
	kind := apperr.KindOf(err)
	reason := apperr.ReasonOf(err)
	if kind == apperr.KindServer {
		h.Logger.Error(route+" ❌ Server error", "err", err)
		reason = "Internal server error"
	} else {
		h.Logger.Info(route+" ❌ Rejected", "code", kind, "reason", reason)
	}
	writeJSON(w, statusOf(kind), map[string]string{"error": reason, "code": kind.String()})
}

func badRequest(reason string) error {
	return apperr.New(apperr.KindInvalidRequest, reason)
}

// caller resolves the identity of r. An unknown caller comes back as
// the zero Caller so that the service can report a disabled system
// before rejecting the identity.
func (h *Handler) caller(r *http.Request) (model.Caller, error) {
	return anonymousIfUnknown(h.Identity.Resolve(r))
}

func anonymousIfUnknown(c model.Caller, err error) (model.Caller, error) {
	if apperr.KindOf(err) == apperr.KindUnauthenticated {
		return model.Caller{}, nil
	}
	return c, err
}

// pageParams reads skip and take. take defaults to 20 and is clamped
// to [1, 100].
func pageParams(r *http.Request) (skip, take int, err error) {
	q := r.URL.Query()
	take = defaultTake
	if v := q.Get("take"); v != "" {
		take, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, badRequest("invalid take")
		}
	}
	take = min(max(take, 1), maxTake)
	if v := q.Get("skip"); v != "" {
		skip, err = strconv.Atoi(v)
		if err != nil || skip < 0 {
			return 0, 0, badRequest("invalid skip")
		}
	}
	return skip, take, nil
}

// sinceParam reads the incremental poll cursor, RFC 3339 or unix
// milliseconds.
func sinceParam(r *http.Request) (*time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, badRequest("invalid since")
	}
	return &t, nil
}

func idParam(vars map[string]string) (int64, error) {
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		return 0, badRequest("invalid conversation id")
	}
	return id, nil
}
