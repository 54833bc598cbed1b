package gossip

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ts4z/trz/varz"
)

var (
	listenersRegistered = varz.NewInt("listenersRegistered")
	listenersNotified   = varz.NewInt("listenersNotified")
	listenersAnswered   = varz.NewInt("listenersAnsweredImmediately")
)

// A listen request eventually results in at most one write to one of these
// channels.  Writes happen on their own goroutine, but callers that may
// stop reading should pass buffered channels.
type channels[T any] struct {
	errCh chan<- error
	ch    chan<- T
}

// Source is where a Gossiper reads the current value of a key.
type Source[T any] interface {
	Fetch(ctx context.Context, key string) (T, error)
}

// Gossiper provides a tattletale for changes to versioned values.
// Subscribers either change values locally, or wait for the db
// notification to percolate back.
type Gossiper[T any] struct {
	mu        sync.Mutex
	listeners map[string][]*channels[T]

	source  Source[T]
	version func(T) int64
	clone   func(T) T
}

func NewGossiper[T any](source Source[T], version func(T) int64, clone func(T) T) *Gossiper[T] {
	return &Gossiper[T]{
		listeners: make(map[string][]*channels[T]),
		source:    source,
		version:   version,
		clone:     clone,
	}
}

// Listen arranges for the next version of key after version to be sent to
// ch.  If the stored value already differs, it is sent right away.  The
// registration is dropped when ctx is done.
func (g *Gossiper[T]) Listen(ctx context.Context, key string, version int64, errCh chan<- error, ch chan<- T) {
	log := zerolog.Ctx(ctx)

	current, err := g.source.Fetch(ctx, key)
	if err != nil {
		go func() { errCh <- fmt.Errorf("can't listen for changes: can't fetch %s: %w", key, err) }()
		return
	}

	if v := g.version(current); v != version {
		if v < version {
			// A confused or malicious client, or a bug.
			log.Warn().Str("key", key).Int64("client", version).Int64("stored", v).Msg("client claims a newer version than stored")
		}
		listenersAnswered.Add(1)
		go func() { ch <- current }()
		return
	}

	chs := &channels[T]{errCh: errCh, ch: ch}
	g.mu.Lock()
	g.listeners[key] = append(g.listeners[key], chs)
	g.mu.Unlock()
	listenersRegistered.Add(1)
	log.Debug().Str("key", key).Int64("version", version).Msg("client listening for changes")

	go func() {
		<-ctx.Done()
		g.forget(key, chs)
	}()
}

func (g *Gossiper[T]) forget(key string, chs *channels[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ls := g.listeners[key]
	for i, l := range ls {
		if l == chs {
			g.listeners[key] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(g.listeners[key]) == 0 {
		delete(g.listeners, key)
	}
}

func (g *Gossiper[T]) reset(key string) []*channels[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	ls := g.listeners[key]
	delete(g.listeners, key)
	return ls
}

// NotifyUpdated sends v to everyone waiting on key.
func (g *Gossiper[T]) NotifyUpdated(ctx context.Context, key string, v T) {
	listeners := g.reset(key)
	for _, chs := range listeners {
		go func() { chs.ch <- g.clone(v) }()
	}
	listenersNotified.Add(int64(len(listeners)))
	if len(listeners) > 0 {
		zerolog.Ctx(ctx).Debug().Str("key", key).Int64("version", g.version(v)).Int("listeners", len(listeners)).Msg("notified listeners")
	}
}

// NotifyDeleted fails everyone waiting on key.
func (g *Gossiper[T]) NotifyDeleted(ctx context.Context, key string) {
	for _, chs := range g.reset(key) {
		go func() { chs.errCh <- fmt.Errorf("%s has been deleted", key) }()
	}
}

// Waiting is the number of listeners registered for key.
func (g *Gossiper[T]) Waiting(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners[key])
}
