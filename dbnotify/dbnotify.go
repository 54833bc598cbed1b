/*
package dbnotify provides a backchannel from the database to push changes to
models out to other locations.  Postgres only; triggers installed by
state.Bootstrap send the events.
*/
package dbnotify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const OpDelete = "DELETE"

type NotificationEvent struct {
	Table   string
	OnID    string
	Version int64
	Op      string // INSERT, UPDATE or DELETE
}

func (e *NotificationEvent) Deleted() bool {
	return e.Op == OpDelete
}

type DBNotifyListener struct {
	db                  *sql.DB
	tableNameToConsumer map[string]Consumer
}

type CacheStorage interface {
	CacheInvalidate(ctx context.Context, key string, version int64)
}

// CacheDropper is a cache that can forget a key whatever its version.
// A delete carries the last version written, so it is used for deletes
// when the cache has it.
type CacheDropper interface {
	CacheDrop(ctx context.Context, key string)
}

// Caller must implement.
type ClientNotifier[StoredType any] interface {
	NotifyUpdated(ctx context.Context, m StoredType)
	NotifyDeleted(ctx context.Context, id string)
}

type StorageFetcher[StoredType any] interface {
	Fetch(ctx context.Context, id string) (StoredType, error)
}

// ChangeDispatcher is a Consumer that invalidates a cache, re-reads the
// changed row, and tells clients.  Any of the three may be nil.
type ChangeDispatcher[StoredType any] struct {
	tableName      string
	clientNotifier ClientNotifier[StoredType]
	cacheStorage   CacheStorage
	fetcher        StorageFetcher[StoredType]
}

func (cd *ChangeDispatcher[StoredType]) TableName() string {
	return cd.tableName
}

func NewChangeDispatcher[StoredType any](tableName string, clientNotifier ClientNotifier[StoredType], cacheStorage CacheStorage, fetcher StorageFetcher[StoredType]) *ChangeDispatcher[StoredType] {
	return &ChangeDispatcher[StoredType]{
		tableName:      tableName,
		clientNotifier: clientNotifier,
		cacheStorage:   cacheStorage,
		fetcher:        fetcher,
	}
}

type Consumer interface {
	TableName() string
	Consume(ctx context.Context, event *NotificationEvent)
}

func NewDBNotifyListener(db *sql.DB, consumers ...Consumer) (*DBNotifyListener, error) {
	m := make(map[string]Consumer)
	for _, c := range consumers {
		tableName := c.TableName()
		if _, exists := m[tableName]; exists {
			return nil, fmt.Errorf("duplicate consumer for table %s", tableName)
		}
		m[tableName] = c
	}

	return &DBNotifyListener{db: db, tableNameToConsumer: m}, nil
}

// healthyListen is how long a session must last before a drop is treated
// as a fresh failure rather than a repeat.
const healthyListen = time.Minute

func newBackoff() retry.Backoff {
	return retry.WithJitterPercent(10, retry.WithCappedDuration(time.Minute, retry.NewExponential(time.Second)))
}

// Run keeps a Listen session open until ctx is done, reconnecting with
// backoff whenever the connection drops.
func (cl *DBNotifyListener) Run(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	backoff := newBackoff()
	for {
		start := time.Now()
		err := cl.Listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > healthyListen {
			backoff = newBackoff()
		}
		delay, _ := backoff.Next()
		log.Warn().Err(err).Dur("retryIn", delay).Msg("db notifications interrupted")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Listen holds one connection, delivering notifications to consumers,
// until ctx is done or the connection fails.
func (cl *DBNotifyListener) Listen(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	conn, err := cl.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var pgxConn *stdlib.Conn
	err = conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.New("not a pgx connection")
		}
		pgxConn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get pgx connection: %w", err)
	}

	for table := range cl.tableNameToConsumer {
		channel := pgx.Identifier{table + "_changes"}.Sanitize()
		if _, err := pgxConn.Conn().Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("failed to listen on channel %s: %w", channel, err)
		}
	}
	log.Info().Int("tables", len(cl.tableNameToConsumer)).Msg("listening for db notifications")

	for {
		notification, err := pgxConn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("error waiting for notification: %w", err)
		}
		log.Debug().Uint32("pid", notification.PID).Str("payload", notification.Payload).Msg("received db notification")

		event, err := ParseEvent(notification.Payload)
		if err != nil {
			log.Error().Err(err).Msg("dropping notification")
			continue
		}
		cl.Dispatch(ctx, event)
	}
}

func ParseEvent(payload string) (*NotificationEvent, error) {
	event := &NotificationEvent{}
	if err := json.Unmarshal([]byte(payload), event); err != nil {
		return nil, fmt.Errorf("can't unmarshal notification payload %q: %w", payload, err)
	}
	if event.Table == "" || event.OnID == "" {
		return nil, fmt.Errorf("incomplete notification payload %q", payload)
	}
	return event, nil
}

// Dispatch hands event to the consumer for its table on its own goroutine.
func (cl *DBNotifyListener) Dispatch(ctx context.Context, event *NotificationEvent) {
	consumer, ok := cl.tableNameToConsumer[event.Table]
	if !ok {
		zerolog.Ctx(ctx).Warn().Str("table", event.Table).Msg("no consumer for table")
		return
	}
	go consumer.Consume(ctx, event)
}

func (cd *ChangeDispatcher[StoredType]) Consume(ctx context.Context, event *NotificationEvent) {
	if cd.cacheStorage != nil {
		if dropper, ok := cd.cacheStorage.(CacheDropper); ok && event.Deleted() {
			dropper.CacheDrop(ctx, event.OnID)
		} else {
			cd.cacheStorage.CacheInvalidate(ctx, event.OnID, event.Version)
		}
	}

	if event.Deleted() {
		if cd.clientNotifier != nil {
			cd.clientNotifier.NotifyDeleted(ctx, event.OnID)
		}
		return
	}

	if cd.fetcher == nil || cd.clientNotifier == nil {
		return
	}

	// Read-through.
	item, err := cd.fetcher.Fetch(ctx, event.OnID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("table", cd.tableName).Str("id", event.OnID).Msg("drop notification: can't fetch item")
		return
	}
	cd.clientNotifier.NotifyUpdated(ctx, item)
}
