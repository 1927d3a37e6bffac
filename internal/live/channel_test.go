package live

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/briangreenhill/finboard/internal/cache"
)

// pushServer serves Path and writes frames to every connection it accepts.
// With hold set the connection stays open until the client goes away.
func pushServer(t *testing.T, hold bool, frames ...string) (string, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	mux := http.NewServeMux()
	mux.Handle(Path, websocket.Handler(func(conn *websocket.Conn) {
		conns.Add(1)
		for _, f := range frames {
			if err := websocket.Message.Send(conn, f); err != nil {
				return
			}
		}
		if hold {
			_, _ = io.Copy(io.Discard, conn)
		}
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &conns
}

func recorder() (*Registry, chan Event) {
	events := make(chan Event, 16)
	reg := NewRegistry()
	reg.Register(ActionNewTransaction, func(ctx context.Context, ev Event) {
		events <- ev
	})
	return reg, events
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no live event received")
		return Event{}
	}
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"action":"new_transaction","user_id":42,"amount":5}`))
	require.NoError(t, err)
	assert.Equal(t, ActionNewTransaction, ev.Action)
	assert.Equal(t, "42", ev.UserID)
	assert.Contains(t, string(ev.Raw), `"amount":5`)

	ev, err = Decode([]byte(`{"action":"new_transaction","user_id":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", ev.UserID)

	ev, err = Decode([]byte(`{"action":"new_transaction","user_id":null}`))
	require.NoError(t, err)
	assert.Empty(t, ev.UserID)

	_, err = Decode([]byte(`{"user_id":1}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	u, err := Endpoint("ws://localhost:8000")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/transactions", u.String())

	u, err = Endpoint("wss://api.example.com/ledger/")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/ledger/ws/transactions", u.String())

	_, err = Endpoint("http://localhost:8000")
	assert.Error(t, err)
}

func TestChannelDispatchesKnownActions(t *testing.T) {
	base, _ := pushServer(t, true,
		`{"action":"balance_changed"}`,
		`garbage`,
		`{"action":"new_transaction","user_id":"someone-else"}`,
		`{"action":"new_transaction","user_id":"u1","id":9}`,
		`{"action":"new_transaction"}`,
	)
	reg, events := recorder()

	ch, err := Open(base, "u1", reg, WithRetryDelay(10*time.Millisecond))
	require.NoError(t, err)
	defer ch.Close()

	first := next(t, events)
	assert.Equal(t, "u1", first.UserID)
	assert.Contains(t, string(first.Raw), `"id":9`)

	second := next(t, events)
	assert.Empty(t, second.UserID)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, ch.Connected())
}

func TestChannelReconnects(t *testing.T) {
	// every connection delivers one event and hangs up
	base, conns := pushServer(t, false, `{"action":"new_transaction"}`)
	reg, events := recorder()

	ch, err := Open(base, "u1", reg, WithRetryDelay(10*time.Millisecond))
	require.NoError(t, err)
	defer ch.Close()

	next(t, events)
	next(t, events)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestChannelSurvivesUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ch, err := Open(base, "u1", NewRegistry(), WithRetryDelay(10*time.Millisecond))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, ch.Connected())

	done := make(chan struct{})
	go func() {
		ch.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestOpenRejectsHTTP(t *testing.T) {
	_, err := Open("http://localhost:8000", "u1", NewRegistry())
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Actions())
	assert.False(t, reg.Dispatch(context.Background(), Event{Action: "nope"}))

	var got []cache.Key
	reg.Register(ActionNewTransaction, Invalidates(func(prefixes ...cache.Key) {
		got = append(got, prefixes...)
	}, cache.NewKey("transactions", "u1"), cache.NewKey("balance", "u1")))
	reg.Register("another", func(ctx context.Context, ev Event) {})

	assert.Equal(t, []string{"another", ActionNewTransaction}, reg.Actions())
	assert.True(t, reg.Dispatch(context.Background(), Event{Action: ActionNewTransaction}))
	require.Len(t, got, 2)
	assert.Equal(t, "transactions:u1", got[0].String())
	assert.Equal(t, "balance:u1", got[1].String())
}
