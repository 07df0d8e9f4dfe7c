package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "privmsg.user."

// userSubject encodes uid as a single subject token, since a uid may
// hold dots, spaces or wildcards.
func userSubject(uid string) string {
	return subjectPrefix + base64.RawURLEncoding.EncodeToString([]byte(uid))
}

func subjectUser(subject string) (string, bool) {
	token, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok {
		return "", false
	}
	uid, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	return string(uid), true
}

// NATSBridge fans events out to every node. Publish goes to the user's
// subject; each node subscribes to all user subjects and hands what it
// receives to its local Hub.
type NATSBridge struct {
	nc     *nats.Conn
	hub    *Hub
	sub    *nats.Subscription
	logger *log.Logger
}

// ConnectNATS dials url and binds the bridge to hub.
func ConnectNATS(url string, hub *Hub, logger *log.Logger) (*NATSBridge, error) {
	nc, err := nats.Connect(url, nats.Name("privmsg"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSBridge(nc, hub, logger), nil
}

// NewNATSBridge wraps an existing connection.
func NewNATSBridge(nc *nats.Conn, hub *Hub, logger *log.Logger) *NATSBridge {
	return &NATSBridge{nc: nc, hub: hub, logger: logger.With("component", "nats")}
}

// Start subscribes to every user subject.
func (b *NATSBridge) Start() error {
	sub, err := b.nc.Subscribe(subjectPrefix+"*", func(m *nats.Msg) {
		uid, ok := subjectUser(m.Subject)
		if !ok {
			b.logger.Warn("unexpected subject", "subject", m.Subject)
			return
		}
		if n := b.hub.deliver(uid, m.Data); n > 0 {
			b.logger.Debug("event delivered", "uid", uid, "sessions", n)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	b.sub = sub
	return nil
}

// Publish sends event to uid's sessions on whichever node holds them.
func (b *NATSBridge) Publish(ctx context.Context, uid string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.nc.Publish(userSubject(uid), data); err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", userSubject(uid), err)
	}
	return nil
}

// Close unsubscribes and drains the connection.
func (b *NATSBridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}
