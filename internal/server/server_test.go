package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/pagecomposer/internal/activity"
	"github.com/matthewbaird/pagecomposer/internal/event"
	"github.com/matthewbaird/pagecomposer/internal/eventbus"
	"github.com/matthewbaird/pagecomposer/internal/hst"
	"github.com/matthewbaird/pagecomposer/internal/rpc"
	"github.com/matthewbaird/pagecomposer/internal/session"
)

const editorOrigin = "http://editor.example.com"

type testEnv struct {
	srv      *httptest.Server
	store    *hst.SQLStore
	sessions *session.Manager
	bus      *eventbus.Bus
	history  *activity.MemoryStore
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newTestEnv serves page "p" with containers X = [c1, c2] and Y = [c3].
// With viaREST the channel persists through the server's own REST endpoint.
func newTestEnv(t *testing.T, viaREST bool) *testEnv {
	t.Helper()
	ctx := testCtx(t)
	store, err := hst.OpenSQLStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreatePage(ctx, hst.Page{ID: "p", Title: "Page", ChannelID: "website"}, []hst.ContainerRecord{
		{ID: "X", Label: "X", XType: "HST.vBox", LastModified: 100, Components: []hst.ComponentRecord{
			{ID: "c1", Label: "one"},
			{ID: "c2", Label: "two"},
		}},
		{ID: "Y", Label: "Y", XType: "HST.vBox", LastModified: 200, Components: []hst.ComponentRecord{
			{ID: "c3", Label: "three"},
		}},
	}))

	env := &testEnv{
		store:    store,
		sessions: session.NewManager(0, 0),
		bus:      eventbus.New(0),
		history:  activity.NewMemoryStore(0),
	}
	env.bus.Subscribe("activity", activity.NewIndexer(env.history))
	env.bus.Start(context.Background())
	t.Cleanup(env.bus.Stop)

	var router http.Handler
	env.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(env.srv.Close)

	cfg := Config{
		Store:    store,
		Origins:  []string{"editor.example.com"},
		User:     "admin",
		Sessions: env.sessions,
		Bus:      env.bus,
		Activity: env.history,
	}
	if viaREST {
		cfg.HSTURL = env.srv.URL
	}
	router = NewRouter(cfg)
	return env
}

// connect opens a channel to page and waits for the session to be ready.
func (e *testEnv) connect(t *testing.T, page string) (*rpc.Channel, *rpc.WebSocketTarget, Ready) {
	t.Helper()
	ctx := testCtx(t)
	endpoint := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/channel?page=" + page
	target, err := rpc.Dial(ctx, endpoint, editorOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { target.Close() })

	client := rpc.New()
	t.Cleanup(client.Destroy)
	readyCh := make(chan event.Event, 1)
	client.On(EventReady, func(evt event.Event) { readyCh <- evt })
	require.NoError(t, client.Initialize(target))

	var ready Ready
	select {
	case evt := <-readyCh:
		require.NoError(t, json.Unmarshal(evt.Payload, &ready))
	case <-ctx.Done():
		t.Fatal("session never became ready")
	}
	return client, target, ready
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)
	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestPreviewRoute(t *testing.T) {
	env := newTestEnv(t, false)
	resp, err := http.Get(env.srv.URL + "/preview/p")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"HST-Type":"CONTAINER_COMPONENT"`)
}

func TestChannel_ReadyAndMove(t *testing.T) {
	for name, viaREST := range map[string]bool{"local store": false, "rest endpoint": true} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, viaREST)
			client, _, ready := env.connect(t, "p")
			ctx := testCtx(t)

			assert.NotEmpty(t, ready.SessionID)
			require.Len(t, ready.Page.Containers, 2)
			assert.NotNil(t, env.sessions.Get(ready.SessionID))

			changed := make(chan struct{}, 1)
			client.On(session.EventPageChange, func(event.Event) { changed <- struct{}{} })

			var out session.DropView
			require.NoError(t, client.CallInto(ctx, &out, session.CommandMoveComponent, "c2", "Y", "c3"))
			assert.Equal(t, []string{"X", "Y"}, out.Changed)
			select {
			case <-changed:
			case <-ctx.Done():
				t.Fatal("no page:change event")
			}

			y, err := env.store.GetContainer(ctx, "Y")
			require.NoError(t, err)
			assert.Equal(t, []string{"c2", "c3"}, y.ChildIDs())

			var rec hst.ContainerRecord
			require.NoError(t, client.CallInto(ctx, &rec, session.CommandGetContainer, "X"))
			assert.Equal(t, []string{"c1"}, rec.ChildIDs())
		})
	}
}

func TestChannel_SessionRemovedOnDisconnect(t *testing.T) {
	env := newTestEnv(t, false)
	_, target, ready := env.connect(t, "p")
	require.Equal(t, 1, env.sessions.Len())

	require.NoError(t, target.Close())
	assert.Eventually(t, func() bool { return env.sessions.Get(ready.SessionID) == nil }, 5*time.Second, 10*time.Millisecond)
}

func TestChannel_ExpiredSessionClosesSocket(t *testing.T) {
	env := newTestEnv(t, false)
	_, target, ready := env.connect(t, "p")
	ctx := testCtx(t)

	env.sessions.Remove(ready.SessionID)

	select {
	case <-target.Done():
	case <-ctx.Done():
		t.Fatal("socket left open after the session expired")
	}
}

func TestChannel_UnknownPageClosesSocket(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := testCtx(t)
	endpoint := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/channel?page=missing"
	target, err := rpc.Dial(ctx, endpoint, editorOrigin)
	require.NoError(t, err)
	defer target.Close()

	client := rpc.New()
	defer client.Destroy()
	require.NoError(t, client.Initialize(target))

	select {
	case <-target.Done():
	case <-ctx.Done():
		t.Fatal("socket left open for an unknown page")
	}
	assert.Equal(t, 0, env.sessions.Len())
}

func TestChannel_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, false)
	endpoint := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/channel?page=p"
	_, err := rpc.Dial(testCtx(t), endpoint, "http://evil.example.com")
	assert.Error(t, err)
	assert.Equal(t, 0, env.sessions.Len())
}

func TestActivityRoute(t *testing.T) {
	env := newTestEnv(t, false)
	client, _, _ := env.connect(t, "p")
	ctx := testCtx(t)

	_, err := client.Call(ctx, session.CommandMoveComponent, "c1", "Y")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		resp, err := http.Get(env.srv.URL + "/activity/component/c1")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var out struct {
			Total int `json:"total"`
		}
		return json.NewDecoder(resp.Body).Decode(&out) == nil && out.Total == 1
	}, 5*time.Second, 20*time.Millisecond)
}
