package dragdrop

import (
	"context"
	"log"

	"github.com/matthewbaird/pagecomposer/internal/geometry"
	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
	"github.com/matthewbaird/pagecomposer/internal/rpc"
)

// Commands and events exchanged with the peer window.
const (
	CommandUpdateContainer = "updateContainer"
	EventMouse             = "iframe:mouse"
	EventNotification      = "notification"
)

// Caller is the part of rpc.Channel used to reach the peer.
type Caller interface {
	CallInto(ctx context.Context, out any, command string, args ...any) error
	Trigger(ctx context.Context, name string, payload any) error
}

var _ Caller = (*rpc.Channel)(nil)

// RPCPersister persists containers by asking the peer window, which owns
// the REST client, to update them.
type RPCPersister struct {
	Channel Caller
}

func (p RPCPersister) UpdateContainer(ctx context.Context, id string, rep pagestructure.Representation) (pagestructure.Representation, error) {
	var out pagestructure.Representation
	if err := p.Channel.CallInto(ctx, &out, CommandUpdateContainer, id, rep); err != nil {
		return pagestructure.Representation{}, err
	}
	return out, nil
}

// MouseEvent is the payload of an EventMouse event.
type MouseEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"clientX"`
	Y    float64 `json:"clientY"`
}

// ChannelDispatcher forwards synthesized mouse events to the preview frame.
type ChannelDispatcher struct {
	Channel Caller
}

func (d ChannelDispatcher) DispatchMouseEvent(ctx context.Context, eventType string, at geometry.Point) error {
	return d.Channel.Trigger(ctx, EventMouse, MouseEvent{Type: eventType, X: at.X, Y: at.Y})
}

// Notification is the payload of an EventNotification event.
type Notification struct {
	Level  string            `json:"level"`
	Key    string            `json:"key"`
	Params map[string]string `json:"params,omitempty"`
}

// ChannelNotifier shows errors by sending a notification event to the peer.
type ChannelNotifier struct {
	Channel Caller
}

func (n ChannelNotifier) Error(ctx context.Context, key string, params map[string]string) {
	if err := n.Channel.Trigger(ctx, EventNotification, Notification{Level: "error", Key: key, Params: params}); err != nil {
		log.Printf("dragdrop: sending notification %s: %v", key, err)
	}
}
