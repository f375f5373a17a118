package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/pagecomposer/internal/event"
	"github.com/matthewbaird/pagecomposer/internal/eventbus"
)

// HandlerFunc serves one command. args holds the request payload spread as
// positional arguments. The returned value is sent back as the result; a
// returned error becomes a rejected response.
type HandlerFunc func(ctx context.Context, args []json.RawMessage) (any, error)

// Channel carries calls and events between this window and one peer window.
// Each parent/child pair gets its own Channel; there is no shared state.
type Channel struct {
	mu        sync.Mutex
	target    Target
	unlisten  func()
	pending   map[string]chan Message
	handlers  map[string]HandlerFunc
	destroyed bool

	bus     *eventbus.Bus
	ownsBus bool

	ctx    context.Context
	cancel context.CancelFunc

	callTimeout time.Duration
	debug       bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithCallTimeout abandons calls that have not been answered within d.
// The default of zero waits until the caller's context is done.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Channel) { c.callTimeout = d }
}

// WithBus publishes inbound events on a shared bus. The caller owns the
// bus and is responsible for starting and stopping it.
func WithBus(b *eventbus.Bus) Option {
	return func(c *Channel) { c.bus = b }
}

// WithDebugLog logs dropped messages.
func WithDebugLog() Option {
	return func(c *Channel) { c.debug = true }
}

// New creates a channel. It does nothing until Initialize is called.
func New(opts ...Option) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		pending:  make(map[string]chan Message),
		handlers: make(map[string]HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = eventbus.New(0)
		c.ownsBus = true
		c.bus.Start(ctx)
	}
	return c
}

// Initialize binds the channel to target. Calling it again replaces the
// previous listener, so messages from the old target are no longer processed.
func (c *Channel) Initialize(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrChannelDestroyed
	}
	if c.unlisten != nil {
		c.unlisten()
	}
	origin := target.Origin()
	c.target = target
	c.unlisten = target.Listen(func(env Envelope) {
		c.receive(origin, env)
	})
	return nil
}

// Destroy removes the listener. Calls still in flight are left to their
// context or the call timeout.
func (c *Channel) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	if c.unlisten != nil {
		c.unlisten()
		c.unlisten = nil
	}
	c.target = nil
	c.mu.Unlock()

	c.cancel()
	if c.ownsBus {
		c.bus.Stop()
	}
}

// Register adds the handler for command. A command can only have one handler;
// registering a second one fails with ErrHandlerExists.
func (c *Channel) Register(command string, fn HandlerFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[command]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerExists, command)
	}
	c.handlers[command] = fn
	return nil
}

// Unregister removes the handler for command, if any.
func (c *Channel) Unregister(command string) {
	c.mu.Lock()
	delete(c.handlers, command)
	c.mu.Unlock()
}

// On subscribes fn to events with the given name received from the peer.
// fn runs on the bus consumer goroutine.
func (c *Channel) On(name string, fn func(event.Event)) (unsubscribe func()) {
	return c.bus.SubscribeTopic("rpc:"+name, name, eventbus.HandlerFunc(func(_ context.Context, evt event.Event) error {
		if evt.Source == event.SourceFrame {
			fn(evt)
		}
		return nil
	}))
}

// Call sends a request and waits for the matching response. Responses are
// matched by id, so concurrent calls may complete in any order.
func (c *Channel) Call(ctx context.Context, command string, args ...any) (json.RawMessage, error) {
	payload, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	reply := make(chan Message, 1)

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrChannelDestroyed
	}
	target := c.target
	if target == nil {
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	if err := c.post(ctx, target, Message{
		Type:    TypeRequest,
		ID:      id,
		Command: command,
		Payload: payload,
	}); err != nil {
		return nil, err
	}

	select {
	case msg := <-reply:
		if msg.State == StateRejected {
			return nil, &RemoteError{Command: command, Result: msg.Result}
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("rpc: %s: %w", command, ctx.Err())
	}
}

// CallInto is Call followed by decoding the result into out.
func (c *Channel) CallInto(ctx context.Context, out any, command string, args ...any) error {
	result, err := c.Call(ctx, command, args...)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("rpc: decoding %s result: %w", command, err)
	}
	return nil
}

// Trigger posts an event to the peer. No reply is expected.
func (c *Channel) Trigger(ctx context.Context, name string, payload any) error {
	c.mu.Lock()
	target, destroyed := c.target, c.destroyed
	c.mu.Unlock()
	if destroyed {
		return ErrChannelDestroyed
	}
	if target == nil {
		return ErrNotInitialized
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", name, err)
	}
	return c.post(ctx, target, Message{Type: TypeEvent, Event: name, Payload: raw})
}

func (c *Channel) post(ctx context.Context, target Target, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := target.Post(ctx, data); err != nil {
		return fmt.Errorf("rpc: posting %s: %w", msg.Type, err)
	}
	return nil
}

// receive handles one inbound envelope. expected is the origin of the
// target the listener was installed for.
func (c *Channel) receive(expected string, env Envelope) {
	if env.Origin != expected {
		c.debugf("rpc: dropping message from unexpected origin %q", env.Origin)
		return
	}
	var msg Message
	if err := json.Unmarshal(env.Data, &msg); err != nil || !msg.valid() {
		c.debugf("rpc: dropping malformed message from %s", env.Origin)
		return
	}

	switch msg.Type {
	case TypeRequest:
		go c.serve(msg)
	case TypeResponse:
		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if !ok {
			c.debugf("rpc: dropping response %s with no pending call", msg.ID)
			return
		}
		reply <- msg
	case TypeEvent:
		c.bus.Publish(c.ctx, event.FromFrame(msg.Event, msg.Payload))
	}
}

// serve runs the handler for an inbound request and posts the response.
func (c *Channel) serve(req Message) {
	c.mu.Lock()
	fn, ok := c.handlers[req.Command]
	target := c.target
	c.mu.Unlock()
	if target == nil {
		return
	}

	resp := Message{Type: TypeResponse, ID: req.ID, State: StateFulfilled}
	result, err := c.invoke(fn, ok, req)
	if err == nil {
		resp.Result, err = json.Marshal(result)
	}
	if err != nil {
		resp.State = StateRejected
		resp.Result = rejectionResult(err)
	}

	if err := c.post(c.ctx, target, resp); err != nil {
		log.Printf("rpc: responding to %s: %v", req.Command, err)
	}
}

func (c *Channel) invoke(fn HandlerFunc, ok bool, req Message) (result any, err error) {
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command)
	}
	args, err := req.args()
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("rpc: handler %s panicked: %v", req.Command, r)
			err = fmt.Errorf("handler %s panicked: %v", req.Command, r)
		}
	}()
	return fn(c.ctx, args)
}

func (c *Channel) debugf(format string, args ...any) {
	if c.debug {
		log.Printf(format, args...)
	}
}
