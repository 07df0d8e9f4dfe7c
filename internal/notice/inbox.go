// Package notice delivers asynchronous notices: straight into the
// notices table, or through an asynq queue whose worker does the same.
package notice

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"privmsg/internal/clock"
	"privmsg/internal/model"
)

type Store interface {
	InsertNotice(ctx context.Context, n model.Notice, now time.Time) (int64, error)
	Notices(ctx context.Context, uid string, limit int) ([]model.Notice, error)
}

// Inbox writes notices into the user's in-app inbox.
type Inbox struct {
	store  Store
	clock  clock.Clock
	logger *log.Logger
}

// NewInbox creates an Inbox on st.
func NewInbox(st Store, clk clock.Clock, logger *log.Logger) *Inbox {
	return &Inbox{store: st, clock: clk, logger: logger.With("component", "inbox")}
}

// Send stores a notice for uid.
func (i *Inbox) Send(ctx context.Context, uid, title, body, linkPath string) error {
	id, err := i.store.InsertNotice(ctx, model.Notice{
		UserUID:  uid,
		Title:    title,
		Body:     body,
		LinkPath: linkPath,
	}, i.clock.Now())
	if err != nil {
		return err
	}
	i.logger.Debug("notice stored", "uid", uid, "notice", id)
	return nil
}

// List returns up to limit of uid's newest notices.
func (i *Inbox) List(ctx context.Context, uid string, limit int) ([]model.Notice, error) {
	return i.store.Notices(ctx, uid, limit)
}
