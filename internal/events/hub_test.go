package events

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/catalog"
	"arena/internal/watcher"
)

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	a := hub.Register()
	b := hub.Register()
	defer hub.Unregister(a)
	defer hub.Unregister(b)

	hub.Broadcast(Message{Data: "create Contest 1"})

	for _, ch := range []chan Message{a, b} {
		select {
		case msg := <-ch:
			assert.Equal(t, "create Contest 1", msg.Data)
			assert.Empty(t, msg.Event)
		case <-time.After(time.Second):
			t.Fatal("client never received the message")
		}
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.Register()
	hub.Unregister(ch)

	_, open := <-ch
	assert.False(t, open)

	// Double unregister is harmless.
	hub.Unregister(ch)

	// A departed client no longer receives anything.
	hub.Broadcast(Message{Data: "late"})
}

func TestSlowClientIsSkippedNotBlocked(t *testing.T) {
	hub := NewHub()
	ch := hub.Register()
	defer hub.Unregister(ch)

	// Fill the buffer and keep going: Broadcast must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.Broadcast(Message{Data: "flood"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Len(t, ch, cap(ch))
}

func TestAttachSubscribesNonSubmissionEntities(t *testing.T) {
	hub := NewHub()
	w := watcher.New("postgres://ignored")
	reg := catalog.Build()

	require.NoError(t, hub.Attach(w, reg))
}

func TestAttachMessageFormat(t *testing.T) {
	// The wire format is "<kind> <entity name> <ref>" on the default
	// message type; the entity name is the catalog name, not the table.
	hub := NewHub()
	ch := hub.Register()
	defer hub.Unregister(ch)

	reg := catalog.Build()
	contest, ok := reg.Get("Contest")
	require.True(t, ok)

	// Mirror what Attach registers for one entity and kind.
	hub.Broadcast(Message{
		Data: strings.Join([]string{"update", contest.Name, "42"}, " "),
	})

	select {
	case msg := <-ch:
		assert.Equal(t, "update Contest 42", msg.Data)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestReinitEventType(t *testing.T) {
	hub := NewHub()
	ch := hub.Register()
	defer hub.Unregister(ch)

	hub.Broadcast(Message{Event: "reinit"})

	select {
	case msg := <-ch:
		assert.Equal(t, "reinit", msg.Event)
		assert.Empty(t, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("no reinit delivered")
	}
}
