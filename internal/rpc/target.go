package rpc

import (
	"context"
	"errors"
	"sync"
)

// Envelope is a single message as delivered by a transport, tagged with the
// origin of the window that sent it.
type Envelope struct {
	Origin string
	Data   []byte
}

// Target is the other window as seen from one side of a channel.
type Target interface {
	// Origin is the origin messages from the peer are expected to carry.
	Origin() string
	// Post delivers data to the peer.
	Post(ctx context.Context, data []byte) error
	// Listen subscribes to every message arriving in this window, whatever
	// its origin. The returned function removes the subscription.
	Listen(fn func(Envelope)) (cancel func())
}

// ErrClosed is returned when posting to a closed transport.
var ErrClosed = errors.New("rpc: transport closed")

// listeners is a set of envelope callbacks shared by the transports.
type listeners struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(Envelope)
}

func (l *listeners) add(fn func(Envelope)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Envelope))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) emit(env Envelope) {
	l.mu.RLock()
	fns := make([]func(Envelope), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(env)
	}
}

// PipeEnd is one side of an in-memory window pair.
type PipeEnd struct {
	self  string // origin stamped on messages this end posts
	peer  *PipeEnd
	inbox chan Envelope
	lis   listeners
	done  chan struct{}
	once  sync.Once
}

// NewPipe connects two in-memory windows. Messages posted from the parent
// end arrive at the child end tagged with parentOrigin and vice versa.
// Delivery is asynchronous and FIFO in each direction.
func NewPipe(parentOrigin, childOrigin string) (parent, child *PipeEnd) {
	parent = newPipeEnd(parentOrigin)
	child = newPipeEnd(childOrigin)
	parent.peer, child.peer = child, parent
	go parent.deliver()
	go child.deliver()
	return parent, child
}

func newPipeEnd(origin string) *PipeEnd {
	return &PipeEnd{
		self:  origin,
		inbox: make(chan Envelope, 64),
		done:  make(chan struct{}),
	}
}

func (p *PipeEnd) deliver() {
	for {
		select {
		case env := <-p.inbox:
			p.lis.emit(env)
		case <-p.done:
			return
		}
	}
}

// Origin returns the peer's origin.
func (p *PipeEnd) Origin() string { return p.peer.self }

// Post queues data for delivery at the peer.
func (p *PipeEnd) Post(ctx context.Context, data []byte) error {
	return p.peer.Inject(ctx, p.self, data)
}

// Listen subscribes to messages arriving at this end.
func (p *PipeEnd) Listen(fn func(Envelope)) func() { return p.lis.add(fn) }

// Inject delivers data to this end as if it had been posted by a window
// with the given origin.
func (p *PipeEnd) Inject(ctx context.Context, origin string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.inbox <- Envelope{Origin: origin, Data: buf}:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops delivery at this end.
func (p *PipeEnd) Close() {
	p.once.Do(func() { close(p.done) })
}
