package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/catalog"
)

func descriptor(t *testing.T, name string) *catalog.Descriptor {
	t.Helper()
	desc, ok := catalog.Build().Get(name)
	require.True(t, ok, "entity %s", name)
	return desc
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "create_contests", Channel(KindCreate, "contests"))
	assert.Equal(t, "update_submission_results", Channel(KindUpdate, "submission_results"))
}

func TestParseNotification(t *testing.T) {
	ev, err := parseNotification("create_contests", "42")
	require.NoError(t, err)
	assert.Equal(t, KindCreate, ev.Kind)
	assert.Equal(t, "contests", ev.Table)
	assert.Equal(t, catalog.Key{42}, ev.Key)
	assert.Empty(t, ev.Columns)
}

func TestParseNotificationTableWithUnderscore(t *testing.T) {
	// The kind is everything before the FIRST underscore; the table keeps
	// the rest, underscores included.
	ev, err := parseNotification("update_submission_results", "17 3\nscore\nscore_details")
	require.NoError(t, err)
	assert.Equal(t, KindUpdate, ev.Kind)
	assert.Equal(t, "submission_results", ev.Table)
	assert.Equal(t, catalog.Key{17, 3}, ev.Key)
	assert.Equal(t, []string{"score", "score_details"}, ev.Columns)
}

func TestParseNotificationRejectsMalformed(t *testing.T) {
	cases := []struct {
		channel string
		payload string
	}{
		{"nounderscores", "1"},
		{"upsert_contests", "1"}, // unknown kind
		{"create_contests", ""},
		{"create_contests", "abc"},
		{"create_contests", "1 x"},
	}
	for _, tc := range cases {
		_, err := parseNotification(tc.channel, tc.payload)
		assert.Error(t, err, "channel=%q payload=%q", tc.channel, tc.payload)
	}
}

func TestSubscribeValidation(t *testing.T) {
	contests := descriptor(t, "Contest")
	users := descriptor(t, "User")
	w := New("postgres://ignored")

	cb := func(catalog.Key) {}

	require.NoError(t, w.Subscribe(cb, KindCreate, contests))
	require.NoError(t, w.Subscribe(cb, KindUpdate, contests, "name"))
	// FK columns are valid filter targets even though they are not scalars.
	require.NoError(t, w.Subscribe(cb, KindUpdate, users, "contest_id"))

	assert.Error(t, w.Subscribe(cb, Kind("upsert"), contests))
	assert.Error(t, w.Subscribe(cb, KindDelete, contests, "name"))
	assert.Error(t, w.Subscribe(cb, KindUpdate, contests, "no_such_column"))
}

func TestSubscribeAfterRunFails(t *testing.T) {
	contests := descriptor(t, "Contest")
	w := New("postgres://ignored")
	w.backoff = time.Millisecond
	w.dial = func(ctx context.Context) (conn, error) {
		return nil, errors.New("no database in this test")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Wait until the run loop marks itself started.
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.started
	}, time.Second, time.Millisecond)

	assert.Error(t, w.Subscribe(func(catalog.Key) {}, KindCreate, contests))
	assert.Error(t, w.OnResync(func() {}))

	cancel()
	<-done
}

// fakeConn scripts a connection: it records LISTENs, serves queued
// notifications, then fails to force a reconnect.
type fakeConn struct {
	mu            sync.Mutex
	listens       []string
	notifications []*pgconn.Notification
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listens = append(c.listens, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notifications) == 0 {
		return nil, errors.New("connection closed")
	}
	n := c.notifications[0]
	c.notifications = c.notifications[1:]
	return n, nil
}

func (c *fakeConn) Close(context.Context) error { return nil }

func TestSessionListensThenResyncsThenDispatches(t *testing.T) {
	contests := descriptor(t, "Contest")

	fake := &fakeConn{notifications: []*pgconn.Notification{
		{Channel: "create_contests", Payload: "7"},
	}}

	w := New("postgres://ignored")
	w.dial = func(ctx context.Context) (conn, error) { return fake, nil }

	var mu sync.Mutex
	var order []string
	delivered := make(chan catalog.Key, 1)

	require.NoError(t, w.OnResync(func() {
		mu.Lock()
		order = append(order, "resync")
		mu.Unlock()
	}))
	require.NoError(t, w.Subscribe(func(key catalog.Key) {
		mu.Lock()
		order = append(order, "event")
		mu.Unlock()
		delivered <- key
	}, KindCreate, contests))

	err := w.session(context.Background())
	require.Error(t, err) // the scripted connection dies after one event

	select {
	case key := <-delivered:
		assert.Equal(t, catalog.Key{7}, key)
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"resync", "event"}, order)

	// LISTEN was issued for the subscribed channel before anything else.
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.listens, 1)
	assert.Equal(t, `LISTEN "create_contests"`, fake.listens[0])
}

func TestResyncRunsOnEveryReconnect(t *testing.T) {
	var mu sync.Mutex
	resyncs := 0

	w := New("postgres://ignored")
	w.backoff = time.Millisecond
	w.dial = func(ctx context.Context) (conn, error) {
		return &fakeConn{}, nil // dies on first WaitForNotification
	}
	require.NoError(t, w.OnResync(func() {
		mu.Lock()
		resyncs++
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return resyncs >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestResyncHookPanicIsContained(t *testing.T) {
	w := New("postgres://ignored")
	require.NoError(t, w.OnResync(func() { panic("broken hook") }))

	var ran bool
	require.NoError(t, w.OnResync(func() { ran = true }))

	w.resync(context.Background())
	assert.True(t, ran, "later hooks still run after a panic")
}

func TestDispatchFiltersKindTableAndColumns(t *testing.T) {
	contests := descriptor(t, "Contest")
	tasks := descriptor(t, "Task")

	w := New("postgres://ignored")
	hits := make(chan string, 8)

	sub := func(label string, kind Kind, desc *catalog.Descriptor, columns ...string) {
		require.NoError(t, w.Subscribe(func(catalog.Key) { hits <- label }, kind, desc, columns...))
	}
	sub("contest-create", KindCreate, contests)
	sub("contest-update-name", KindUpdate, contests, "name")
	sub("contest-update-any", KindUpdate, contests)
	sub("task-create", KindCreate, tasks)

	w.dispatch(context.Background(), Event{Kind: KindUpdate, Table: "contests", Key: catalog.Key{1}, Columns: []string{"description"}})

	// Only the unfiltered update subscriber matches: the name-filtered one
	// skips a description-only change, the rest watch other kinds or tables.
	select {
	case label := <-hits:
		assert.Equal(t, "contest-update-any", label)
	case <-time.After(time.Second):
		t.Fatal("expected one delivery")
	}

	select {
	case label := <-hits:
		t.Fatalf("unexpected extra delivery to %s", label)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchCallbackPanicIsContained(t *testing.T) {
	contests := descriptor(t, "Contest")
	w := New("postgres://ignored")

	require.NoError(t, w.Subscribe(func(catalog.Key) { panic("bad subscriber") }, KindCreate, contests))

	done := make(chan struct{})
	require.NoError(t, w.Subscribe(func(catalog.Key) { close(done) }, KindCreate, contests))

	w.dispatch(context.Background(), Event{Kind: KindCreate, Table: "contests", Key: catalog.Key{1}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran")
	}
}
