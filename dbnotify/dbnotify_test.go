package dbnotify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorder struct {
	invalidated []string
	updated     []string
	deleted     []string
	fetchErr    error
}

func (r *recorder) CacheInvalidate(ctx context.Context, key string, version int64) {
	r.invalidated = append(r.invalidated, key)
}

func (r *recorder) NotifyUpdated(ctx context.Context, m string) {
	r.updated = append(r.updated, m)
}

func (r *recorder) NotifyDeleted(ctx context.Context, id string) {
	r.deleted = append(r.deleted, id)
}

func (r *recorder) Fetch(ctx context.Context, id string) (string, error) {
	if r.fetchErr != nil {
		return "", r.fetchErr
	}
	return "fetched:" + id, nil
}

func TestParseEvent(t *testing.T) {
	e, err := ParseEvent(`{"Table":"reports","OnID":"abc","Version":3,"Op":"UPDATE"}`)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if e.Table != "reports" || e.OnID != "abc" || e.Version != 3 || e.Deleted() {
		t.Errorf("event = %+v", e)
	}

	for _, bad := range []string{`nope`, `{"Table":"reports"}`, `{"OnID":"x"}`} {
		if _, err := ParseEvent(bad); err == nil {
			t.Errorf("ParseEvent(%q) succeeded", bad)
		}
	}
}

func TestChangeDispatcher(t *testing.T) {
	ctx := context.Background()
	r := &recorder{}
	cd := NewChangeDispatcher[string]("reports", r, r, r)

	cd.Consume(ctx, &NotificationEvent{Table: "reports", OnID: "a", Version: 2, Op: "UPDATE"})
	cd.Consume(ctx, &NotificationEvent{Table: "reports", OnID: "b", Version: 1, Op: OpDelete})

	if len(r.invalidated) != 2 {
		t.Errorf("invalidated %v, want both", r.invalidated)
	}
	if len(r.updated) != 1 || r.updated[0] != "fetched:a" {
		t.Errorf("updated %v", r.updated)
	}
	if len(r.deleted) != 1 || r.deleted[0] != "b" {
		t.Errorf("deleted %v", r.deleted)
	}
}

func TestChangeDispatcherFetchFailure(t *testing.T) {
	r := &recorder{fetchErr: errors.New("gone")}
	cd := NewChangeDispatcher[string]("settings", r, r, r)
	cd.Consume(context.Background(), &NotificationEvent{Table: "settings", OnID: "global", Op: "UPDATE"})
	if len(r.updated) != 0 {
		t.Errorf("notified after failed fetch: %v", r.updated)
	}
	if len(r.invalidated) != 1 {
		t.Errorf("cache should still be invalidated")
	}
}

func TestDuplicateConsumer(t *testing.T) {
	r := &recorder{}
	a := NewChangeDispatcher[string]("reports", r, r, r)
	b := NewChangeDispatcher[string]("reports", r, r, r)
	if _, err := NewDBNotifyListener(nil, a, b); err == nil {
		t.Errorf("duplicate consumers accepted")
	}
}

type chanConsumer struct {
	table string
	ch    chan *NotificationEvent
}

func (c *chanConsumer) TableName() string { return c.table }

func (c *chanConsumer) Consume(ctx context.Context, event *NotificationEvent) {
	c.ch <- event
}

func TestDispatch(t *testing.T) {
	c := &chanConsumer{table: "reports", ch: make(chan *NotificationEvent, 1)}
	l, err := NewDBNotifyListener(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	l.Dispatch(ctx, &NotificationEvent{Table: "settings", OnID: "global"})
	l.Dispatch(ctx, &NotificationEvent{Table: "reports", OnID: "r1", Op: "INSERT"})

	select {
	case e := <-c.ch:
		if e.OnID != "r1" {
			t.Errorf("got event for %q, want r1", e.OnID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event never reached its consumer")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	b := newBackoff()
	var last time.Duration
	for range 20 {
		d, stop := b.Next()
		if stop {
			t.Fatal("backoff gave up")
		}
		last = d
	}
	if last > time.Minute+6*time.Second {
		t.Errorf("delay grew to %v", last)
	}
}
