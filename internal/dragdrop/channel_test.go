package dragdrop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/pagecomposer/internal/event"
	"github.com/matthewbaird/pagecomposer/internal/geometry"
	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
	"github.com/matthewbaird/pagecomposer/internal/rpc"
)

func channelPair(t *testing.T) (editor, preview *rpc.Channel) {
	t.Helper()
	parentEnd, childEnd := rpc.NewPipe("https://cms.example.com", "https://www.example.com")
	editor, preview = rpc.New(), rpc.New()
	require.NoError(t, editor.Initialize(parentEnd))
	require.NoError(t, preview.Initialize(childEnd))
	t.Cleanup(func() {
		editor.Destroy()
		preview.Destroy()
		parentEnd.Close()
		childEnd.Close()
	})
	return editor, preview
}

func TestRPCPersister(t *testing.T) {
	editor, preview := channelPair(t)
	require.NoError(t, preview.Register(CommandUpdateContainer, func(_ context.Context, args []json.RawMessage) (any, error) {
		var id string
		var rep pagestructure.Representation
		if err := rpc.Arg(args, 0, &id); err != nil {
			return nil, err
		}
		if err := rpc.Arg(args, 1, &rep); err != nil {
			return nil, err
		}
		rep.LastModified = 99
		return rep, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := RPCPersister{Channel: editor}.UpdateContainer(ctx, "X", pagestructure.Representation{ID: "X", Children: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(99), out.LastModified)
	assert.Equal(t, []string{"a", "b"}, out.Children)
}

func TestRPCPersister_Rejected(t *testing.T) {
	editor, preview := channelPair(t)
	require.NoError(t, preview.Register(CommandUpdateContainer, func(context.Context, []json.RawMessage) (any, error) {
		return nil, rpc.Reject(map[string]string{"code": "LOCKED"})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := RPCPersister{Channel: editor}.UpdateContainer(ctx, "X", pagestructure.Representation{ID: "X"})
	var remote *rpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.JSONEq(t, `{"code":"LOCKED"}`, string(remote.Result))
}

func TestChannelDispatcherAndNotifier(t *testing.T) {
	editor, preview := channelPair(t)

	received := make(chan event.Event, 2)
	preview.On(EventMouse, func(evt event.Event) { received <- evt })
	preview.On(EventNotification, func(evt event.Event) { received <- evt })

	ctx := context.Background()
	require.NoError(t, ChannelDispatcher{Channel: editor}.DispatchMouseEvent(ctx, MouseDown, geometry.Point{X: 3, Y: 4}))
	ChannelNotifier{Channel: editor}.Error(ctx, "ERROR_UPDATE_COMPONENT", nil)

	for _, want := range []string{
		`{"type":"mousedown","clientX":3,"clientY":4}`,
		`{"level":"error","key":"ERROR_UPDATE_COMPONENT"}`,
	} {
		select {
		case evt := <-received:
			assert.JSONEq(t, want, string(evt.Payload))
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}
