package directory_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"privmsg/internal/apperr"
	"privmsg/internal/clock"
	"privmsg/internal/directory"
	"privmsg/internal/model"
	"privmsg/internal/store"
	"privmsg/internal/testutil"
)

type fakePresence map[string]bool

func (f fakePresence) IsOnline(_ context.Context, uid string) (bool, error) {
	return f[uid], nil
}

type slowPresence struct{}

func (slowPresence) IsOnline(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return true, ctx.Err()
}

func newDirectory(t *testing.T, presence directory.Presence) (*directory.Directory, *store.Store, *clock.FakeClock) {
	t.Helper()
	st := testutil.NewStore(t)
	clk := clock.Fake(testutil.Epoch)
	return directory.New(st, presence, clk, 50*time.Millisecond, log.New(io.Discard)), st, clk
}

func TestResolveOrCreate_Symmetric(t *testing.T) {
	d, _, _ := newDirectory(t, fakePresence{})
	ctx := context.Background()

	ab, err := d.ResolveOrCreate(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	ba, err := d.ResolveOrCreate(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if ab.ID != ba.ID {
		t.Errorf("Expected one conversation per pair, got %d and %d", ab.ID, ba.ID)
	}
}

// TestResolveOrCreate_Concurrent 同時に作成しても1件になることを確認
func TestResolveOrCreate_Concurrent(t *testing.T) {
	d, _, _ := newDirectory(t, fakePresence{})
	ctx := context.Background()

	const n = 8
	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := d.ResolveOrCreate(ctx, a, b)
			ids[i], errs[i] = conv.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("call %d resolved %d, expected %d", i, ids[i], ids[0])
		}
	}
}

func TestAuthorize_NonParticipantIsNotFound(t *testing.T) {
	d, _, _ := newDirectory(t, fakePresence{})
	ctx := context.Background()

	conv, err := d.ResolveOrCreate(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if _, _, err := d.Authorize(ctx, conv.ID, "carol"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NotFound for an outsider, got %v", err)
	}
	if _, _, err := d.Authorize(ctx, 9999, "alice"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NotFound for a missing conversation, got %v", err)
	}
}

func TestHide_OnlyAffectsCaller(t *testing.T) {
	d, _, _ := newDirectory(t, fakePresence{})
	ctx := context.Background()

	conv, err := d.ResolveOrCreate(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if err := d.Hide(ctx, conv.ID, "alice"); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	aliceList, err := d.ListForUser(ctx, "alice", directory.ListQuery{Take: 20})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if aliceList.Total != 0 {
		t.Errorf("Hidden conversation should disappear for alice, got %d", aliceList.Total)
	}
	bobList, err := d.ListForUser(ctx, "bob", directory.ListQuery{Take: 20})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if bobList.Total != 1 {
		t.Errorf("Bob should still see the conversation, got %d", bobList.Total)
	}

	// Hiding twice is harmless.
	if err := d.Hide(ctx, conv.ID, "alice"); err != nil {
		t.Errorf("Second Hide: %v", err)
	}

	again, err := d.ResolveOrCreate(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if again.ID != conv.ID {
		t.Errorf("Resolving should revive the same conversation")
	}
	aliceList, _ = d.ListForUser(ctx, "alice", directory.ListQuery{Take: 20})
	if aliceList.Total != 1 {
		t.Errorf("Resolving should make the conversation visible again, got %d", aliceList.Total)
	}
}

func TestHide_Outsider(t *testing.T) {
	d, _, _ := newDirectory(t, fakePresence{})
	ctx := context.Background()

	conv, _ := d.ResolveOrCreate(ctx, "alice", "bob")
	if err := d.Hide(ctx, conv.ID, "carol"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestListForUser_EnrichesAndPages(t *testing.T) {
	d, st, clk := newDirectory(t, fakePresence{"bob": true})
	ctx := context.Background()

	var convIDs []int64
	for _, other := range []string{"bob", "carol", "dave"} {
		conv, err := d.ResolveOrCreate(ctx, "alice", other)
		if err != nil {
			t.Fatalf("ResolveOrCreate: %v", err)
		}
		convIDs = append(convIDs, conv.ID)
		clk.Advance(time.Second)
	}

	// A message from bob moves that conversation to the top.
	clk.Advance(time.Second)
	msgAt := clk.Now()
	msgID, err := st.InsertMessage(ctx, model.Message{
		ConversationID: convIDs[0],
		SenderUID:      "bob",
		Content:        "ping",
		Type:           model.MessageTypeText,
		CreatedAt:      msgAt,
	})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if err := st.TouchConversation(ctx, convIDs[0], msgID, msgAt); err != nil {
		t.Fatalf("TouchConversation: %v", err)
	}
	if err := st.RecordInbound(ctx, convIDs[0], "alice", msgAt, true); err != nil {
		t.Fatalf("RecordInbound: %v", err)
	}

	first, err := d.ListForUser(ctx, "alice", directory.ListQuery{Take: 2})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if first.Total != 3 || !first.HasMore || len(first.Items) != 2 {
		t.Fatalf("Unexpected first page: total=%d hasMore=%v items=%d", first.Total, first.HasMore, len(first.Items))
	}
	top := first.Items[0]
	if top.ID != convIDs[0] || top.Other.UID != "bob" || top.Other.Name != "Bob" {
		t.Errorf("Expected bob's conversation first, got %+v", top)
	}
	if !top.OtherOnline || top.UnreadCount != 1 {
		t.Errorf("Expected bob online with 1 unread, got online=%v unread=%d", top.OtherOnline, top.UnreadCount)
	}
	if first.Items[1].OtherOnline {
		t.Error("Only bob is online")
	}

	second, err := d.ListForUser(ctx, "alice", directory.ListQuery{Skip: 2, Take: 2})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if second.HasMore || len(second.Items) != 1 {
		t.Errorf("Unexpected last page: hasMore=%v items=%d", second.HasMore, len(second.Items))
	}

	since := msgAt.Add(-time.Millisecond)
	changed, err := d.ListForUser(ctx, "alice", directory.ListQuery{Since: &since, Take: 20})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if changed.Total != 1 || changed.Items[0].ID != convIDs[0] {
		t.Errorf("Since should only return bob's conversation, got %+v", changed.Items)
	}
}

func TestListForUser_SlowPresenceIsOffline(t *testing.T) {
	d, _, _ := newDirectory(t, slowPresence{})
	ctx := context.Background()

	for _, other := range []string{"bob", "carol", "dave", "erin"} {
		if _, err := d.ResolveOrCreate(ctx, "alice", other); err != nil {
			t.Fatalf("ResolveOrCreate: %v", err)
		}
	}
	start := time.Now()
	res, err := d.ListForUser(ctx, "alice", directory.ListQuery{Take: 20})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(res.Items) != 4 {
		t.Fatalf("Expected 4 items, got %d", len(res.Items))
	}
	for _, item := range res.Items {
		if item.OtherOnline {
			t.Errorf("A timed out presence lookup should read as offline: %s", item.Other.UID)
		}
	}
	// 件数に比例せず、タイムアウト1回分で終わること
	if elapsed > 150*time.Millisecond {
		t.Errorf("Presence lookups should share one 50ms deadline, took %s", elapsed)
	}
}
