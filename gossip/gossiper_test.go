package gossip

import (
	"context"
	"errors"
	"testing"
	"time"
)

type item struct {
	version int64
}

type source struct {
	current item
	err     error
}

func (s *source) Fetch(ctx context.Context, key string) (item, error) {
	return s.current, s.err
}

func newGossiper(s *source) *Gossiper[item] {
	return NewGossiper[item](s, func(i item) int64 { return i.version }, func(i item) item { return i })
}

func channelsFor() (chan error, chan item) {
	return make(chan error, 1), make(chan item, 1)
}

func TestListenAnswersStaleClients(t *testing.T) {
	g := newGossiper(&source{current: item{version: 3}})
	errCh, ch := channelsFor()
	g.Listen(context.Background(), "k", 2, errCh, ch)

	select {
	case got := <-ch:
		if got.version != 3 {
			t.Errorf("got version %d, want 3", got.version)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatalf("stale client never answered")
	}
	if g.Waiting("k") != 0 {
		t.Errorf("stale client should not be registered")
	}
}

func TestListenWaitsForUpdate(t *testing.T) {
	g := newGossiper(&source{current: item{version: 3}})
	errCh, ch := channelsFor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Listen(ctx, "k", 3, errCh, ch)

	if g.Waiting("k") != 1 {
		t.Fatalf("listener not registered")
	}
	select {
	case <-ch:
		t.Fatalf("answered before any update")
	default:
	}

	g.NotifyUpdated(ctx, "k", item{version: 4})
	select {
	case got := <-ch:
		if got.version != 4 {
			t.Errorf("got version %d, want 4", got.version)
		}
	case <-time.After(time.Second):
		t.Fatalf("update never delivered")
	}
	if g.Waiting("k") != 0 {
		t.Errorf("listener should be consumed by the update")
	}
}

func TestListenDeleted(t *testing.T) {
	g := newGossiper(&source{current: item{version: 1}})
	errCh, ch := channelsFor()
	g.Listen(context.Background(), "k", 1, errCh, ch)
	g.NotifyDeleted(context.Background(), "k")
	select {
	case err := <-errCh:
		if err == nil {
			t.Errorf("nil error on delete")
		}
	case <-time.After(time.Second):
		t.Fatalf("delete never delivered")
	}
}

func TestListenFetchError(t *testing.T) {
	g := newGossiper(&source{err: errors.New("db down")})
	errCh, ch := channelsFor()
	g.Listen(context.Background(), "k", 1, errCh, ch)
	select {
	case err := <-errCh:
		if err == nil {
			t.Errorf("nil error")
		}
	case <-time.After(time.Second):
		t.Fatalf("error never delivered")
	}
}

func TestListenCanceled(t *testing.T) {
	g := newGossiper(&source{current: item{version: 1}})
	errCh, ch := channelsFor()
	ctx, cancel := context.WithCancel(context.Background())
	g.Listen(ctx, "k", 1, errCh, ch)
	cancel()

	deadline := time.Now().Add(time.Second)
	for g.Waiting("k") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("canceled listener still registered")
		}
		time.Sleep(time.Millisecond)
	}
}
