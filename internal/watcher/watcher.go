// Package watcher maintains a dedicated LISTEN connection to PostgreSQL and
// turns NOTIFY events from the row triggers into subscriber callbacks.
//
// The connection is self-healing: on any failure the watcher reconnects with
// a fixed backoff, re-issues every LISTEN, and runs the registered resync
// hooks so subscribers can reload state they may have missed while
// disconnected. Only then does it resume dispatching live events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arena/internal/catalog"
	"arena/internal/metrics"
	"arena/pkg/logger"
)

// Kind is the class of a row change.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Channel returns the notification channel name for a kind and table.
func Channel(kind Kind, table string) string {
	return string(kind) + "_" + table
}

// Callback receives the primary key of a changed row. Callbacks run on their
// own goroutine and must not assume ordering across events.
type Callback func(key catalog.Key)

// Event is one decoded notification.
type Event struct {
	Kind    Kind
	Table   string
	Key     catalog.Key
	Columns []string // changed columns, updates only
}

type subscription struct {
	cb      Callback
	kind    Kind
	table   string
	columns map[string]struct{} // empty means any column
}

// conn is the slice of pgx.Conn the watcher needs; tests substitute a fake.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Watcher is the notification listener. Subscriptions and resync hooks are
// registered during wiring, before Run starts; the run loop then reads them
// without locking.
type Watcher struct {
	dial    func(ctx context.Context) (conn, error)
	backoff time.Duration

	mu          sync.Mutex
	started     bool
	resyncHooks []func()
	subs        []subscription
	channels    map[string]struct{}
}

// New creates a watcher connecting with the given DSN. The listener uses its
// own single connection, never the pool: LISTEN state is per-connection.
func New(dsn string) *Watcher {
	return &Watcher{
		dial: func(ctx context.Context) (conn, error) {
			return pgx.Connect(ctx, dsn)
		},
		backoff:  time.Second,
		channels: make(map[string]struct{}),
	}
}

// OnResync registers a hook run after every (re)connect, before any event is
// dispatched. Hooks must reload whatever state the subscriber mirrors.
func (w *Watcher) OnResync(fn func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("watcher: already running")
	}
	w.resyncHooks = append(w.resyncHooks, fn)
	return nil
}

// Subscribe registers a callback for one kind of change on one entity. For
// updates, columns optionally restricts delivery to events touching at least
// one of the named columns; other kinds accept no column filter.
func (w *Watcher) Subscribe(cb Callback, kind Kind, desc *catalog.Descriptor, columns ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("watcher: already running")
	}
	switch kind {
	case KindCreate, KindUpdate, KindDelete:
	default:
		return fmt.Errorf("watcher: unknown kind %q", kind)
	}
	if len(columns) > 0 && kind != KindUpdate {
		return fmt.Errorf("watcher: column filter only applies to updates, not %s", kind)
	}
	sub := subscription{cb: cb, kind: kind, table: desc.Table}
	if len(columns) > 0 {
		sub.columns = make(map[string]struct{}, len(columns))
		for _, c := range columns {
			if _, ok := desc.Column(c); !ok {
				if !isForeignKey(desc, c) {
					return fmt.Errorf("watcher: %s has no column %q", desc.Name, c)
				}
			}
			sub.columns[c] = struct{}{}
		}
	}
	w.subs = append(w.subs, sub)
	w.channels[Channel(kind, desc.Table)] = struct{}{}
	return nil
}

func isForeignKey(desc *catalog.Descriptor, col string) bool {
	for _, name := range desc.ForeignKeyColumns() {
		if name == col {
			return true
		}
	}
	return false
}

// Run drives the listener until ctx is cancelled. It never returns on
// connection failure: any error tears the connection down, waits one backoff
// interval and reconnects.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	for {
		if err := w.session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn(ctx, "listener connection lost, reconnecting", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff):
		}
	}
}

// session runs one connection lifetime: connect, LISTEN everything, resync,
// then dispatch until the connection fails.
func (w *Watcher) session(ctx context.Context) error {
	c, err := w.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close(context.Background())
	metrics.WatcherReconnects.Inc()

	// LISTEN before resync: an event arriving during the reload is then
	// queued by the server instead of lost.
	for channel := range w.channels {
		if _, err := c.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
	}

	w.resync(ctx)

	for {
		n, err := c.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		ev, err := parseNotification(n.Channel, n.Payload)
		if err != nil {
			logger.Warn(ctx, "malformed notification dropped",
				"channel", n.Channel, "error", err)
			continue
		}
		metrics.EventsReceived.WithLabelValues(string(ev.Kind), ev.Table).Inc()
		w.dispatch(ctx, ev)
	}
}

func (w *Watcher) resync(ctx context.Context) {
	metrics.WatcherResyncs.Inc()
	for _, hook := range w.resyncHooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.CallbackPanics.Inc()
					logger.Error(ctx, "resync hook panicked", "panic", r)
				}
			}()
			hook()
		}()
	}
}

// parseNotification decodes a channel name and payload into an event. The
// channel is "<kind>_<table>"; kinds never contain underscores, table names
// may. The payload's first line is the space-joined primary key, remaining
// lines name changed columns.
func parseNotification(channel, payload string) (Event, error) {
	idx := strings.Index(channel, "_")
	if idx < 0 {
		return Event{}, fmt.Errorf("channel %q has no kind prefix", channel)
	}
	kind := Kind(channel[:idx])
	switch kind {
	case KindCreate, KindUpdate, KindDelete:
	default:
		return Event{}, fmt.Errorf("channel %q has unknown kind", channel)
	}

	lines := strings.Split(payload, "\n")
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return Event{}, fmt.Errorf("payload %q has no key", payload)
	}
	key := make(catalog.Key, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("payload key part %q: %w", f, err)
		}
		key[i] = v
	}

	ev := Event{Kind: kind, Table: channel[idx+1:], Key: key}
	for _, line := range lines[1:] {
		if line != "" {
			ev.Columns = append(ev.Columns, line)
		}
	}
	return ev, nil
}

// dispatch fans an event out to matching subscribers. Each callback runs on
// its own goroutine with panic isolation, so a slow or broken subscriber
// never stalls the listener.
func (w *Watcher) dispatch(ctx context.Context, ev Event) {
	for i := range w.subs {
		sub := &w.subs[i]
		if sub.kind != ev.Kind || sub.table != ev.Table {
			continue
		}
		if len(sub.columns) > 0 && !touchesAny(ev.Columns, sub.columns) {
			continue
		}
		metrics.CallbacksDispatched.WithLabelValues(string(ev.Kind), ev.Table).Inc()
		go w.invoke(ctx, sub.cb, ev.Key)
	}
}

func touchesAny(changed []string, filter map[string]struct{}) bool {
	for _, c := range changed {
		if _, ok := filter[c]; ok {
			return true
		}
	}
	return false
}

func (w *Watcher) invoke(ctx context.Context, cb Callback, key catalog.Key) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CallbackPanics.Inc()
			logger.Error(ctx, "subscriber callback panicked", "panic", r)
		}
	}()
	cb(key)
}
