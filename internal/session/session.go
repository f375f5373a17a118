// Package session manages editing sessions. A session belongs to one
// channel connection and owns the parsed preview page and the
// drag-and-drop synchronizer working on it.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/matthewbaird/pagecomposer/internal/dragdrop"
	"github.com/matthewbaird/pagecomposer/internal/event"
	"github.com/matthewbaird/pagecomposer/internal/geometry"
	"github.com/matthewbaird/pagecomposer/internal/hst"
	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
	"github.com/matthewbaird/pagecomposer/internal/rpc"
)

// Events triggered on the peer.
const (
	EventPageChange = "page:change"
	EventPageReload = "page:reload"
)

// Source renders the preview HTML of a page.
type Source interface {
	RenderPage(ctx context.Context, pageID string) (string, error)
}

// ContainerGetter reads a stored container.
type ContainerGetter interface {
	GetContainer(ctx context.Context, id string) (hst.ContainerRecord, error)
}

// Config holds the collaborators of a session.
type Config struct {
	PageID  string
	Channel *rpc.Channel
	Source  Source
	// Persister stores container order. When nil the peer is asked to
	// persist through the channel.
	Persister  dragdrop.Persister
	Containers ContainerGetter
	Publisher  dragdrop.Publisher
}

// Session holds per-connection editing state.
type Session struct {
	ID        string
	PageID    string
	CreatedAt time.Time

	// mu serializes commands; the page is only touched while it is held.
	mu         sync.Mutex
	channel    *rpc.Channel
	source     Source
	containers ContainerGetter
	publisher  dragdrop.Publisher
	page       *pagestructure.Page
	sync       *dragdrop.Synchronizer

	activeMu     sync.Mutex
	lastActiveAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session. Open must be called before the page is used.
func New(cfg Config) *Session {
	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		PageID:       cfg.PageID,
		CreatedAt:    now,
		channel:      cfg.Channel,
		source:       cfg.Source,
		containers:   cfg.Containers,
		publisher:    cfg.Publisher,
		page:         pagestructure.NewPage(),
		lastActiveAt: now,
		done:         make(chan struct{}),
	}

	persister := cfg.Persister
	if persister == nil {
		persister = dragdrop.RPCPersister{Channel: cfg.Channel}
	}
	opts := []dragdrop.Option{
		dragdrop.WithDispatcher(dragdrop.ChannelDispatcher{Channel: cfg.Channel}),
		dragdrop.WithNotifier(dragdrop.ChannelNotifier{Channel: cfg.Channel}),
		dragdrop.WithReloader(reloaderFunc(s.reload)),
	}
	if cfg.Publisher != nil {
		opts = append(opts, dragdrop.WithPublisher(cfg.Publisher))
	}
	s.sync = dragdrop.New(s.page, persister, opts...)
	return s
}

type reloaderFunc func(ctx context.Context) error

func (f reloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

// Open renders and parses the session's page.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Reload re-renders the page, rebuilds the model and tells the peer.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(ctx)
}

// reload runs from inside a drop while mu is held.
func (s *Session) reload(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	return s.channel.Trigger(ctx, EventPageReload, viewOf(s.page))
}

func (s *Session) load(ctx context.Context) error {
	if s.source == nil {
		return fmt.Errorf("session %s: no page source", s.ID)
	}
	out, err := s.source.RenderPage(ctx, s.PageID)
	if err != nil {
		return fmt.Errorf("rendering page %s: %w", s.PageID, err)
	}
	return s.parse(ctx, out)
}

func (s *Session) parse(ctx context.Context, markup string) error {
	page, err := pagestructure.ParseHTML(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parsing page %s: %w", s.PageID, err)
	}
	s.page = page
	s.sync.SetPage(page)
	if s.publisher != nil {
		s.publisher.Publish(ctx, event.New(event.PageParsed, map[string]any{
			"pageId":     page.Meta.PageID,
			"containers": len(page.Containers()),
		}))
	}
	return nil
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.activeMu.Lock()
	s.lastActiveAt = time.Now()
	s.activeMu.Unlock()
}

// LastActiveAt returns when the session last ran a command.
func (s *Session) LastActiveAt() time.Time {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.lastActiveAt
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return maxAge > 0 && time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return timeout > 0 && time.Since(s.LastActiveAt()) > timeout
}

// Page returns a snapshot of the current page model.
func (s *Session) Page() PageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return viewOf(s.page)
}

// ParseHTML replaces the page model with one built from markup, as
// reported by the peer after its document changed.
func (s *Session) ParseHTML(ctx context.Context, markup string) (PageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.parse(ctx, markup); err != nil {
		return PageView{}, err
	}
	return viewOf(s.page), nil
}

// SetViewport updates the frame geometry used for pointer transforms.
func (s *Session) SetViewport(v geometry.Viewport) {
	s.sync.SetViewport(v)
}

// DragStart begins dragging a component at the given overlay position.
func (s *Session) DragStart(ctx context.Context, componentID string, at geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comp, ok := s.page.ComponentByID(componentID)
	if !ok {
		return fmt.Errorf("%w: component %s", pagestructure.ErrUnknown, componentID)
	}
	return s.sync.Start(ctx, comp.Element(), at)
}

// DragMove forwards a pointer move during a drag.
func (s *Session) DragMove(ctx context.Context, at geometry.Point) error {
	return s.sync.Move(ctx, at)
}

// DragCancel abandons the current drag.
func (s *Session) DragCancel(ctx context.Context) error {
	return s.sync.Cancel(ctx)
}

// DragDrop drops the dragged component into a container, before the
// component nextID or at the end when nextID is empty. An unknown
// container cancels the drag.
func (s *Session) DragDrop(ctx context.Context, containerID, nextID string) (DropView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, next := s.elements(containerID, nextID)
	res, err := s.sync.Drop(ctx, target, next)
	return s.afterDrop(ctx, res, err)
}

// MoveComponent moves a component without a drag gesture.
func (s *Session) MoveComponent(ctx context.Context, componentID, containerID, nextID string) (DropView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comp, ok := s.page.ComponentByID(componentID)
	if !ok {
		return DropView{}, fmt.Errorf("%w: component %s", pagestructure.ErrUnknown, componentID)
	}
	if _, ok := s.page.ContainerByID(containerID); !ok {
		return DropView{}, fmt.Errorf("%w: container %s", pagestructure.ErrUnknown, containerID)
	}
	target, next := s.elements(containerID, nextID)
	res, err := s.sync.Place(ctx, comp.Element(), target, next)
	return s.afterDrop(ctx, res, err)
}

// GetContainer returns the stored state of a container.
func (s *Session) GetContainer(ctx context.Context, id string) (hst.ContainerRecord, error) {
	if s.containers == nil {
		return hst.ContainerRecord{}, fmt.Errorf("session %s: containers are not readable", s.ID)
	}
	return s.containers.GetContainer(ctx, id)
}

func (s *Session) elements(containerID, nextID string) (target, next *html.Node) {
	if c, ok := s.page.ContainerByID(containerID); ok {
		target = c.Element()
	}
	if nextID != "" {
		if c, ok := s.page.ComponentByID(nextID); ok {
			next = c.Element()
		}
	}
	return target, next
}

func (s *Session) afterDrop(ctx context.Context, res dragdrop.Result, err error) (DropView, error) {
	view := dropViewOf(res)
	if err != nil {
		return view, err
	}
	if !view.Cancelled {
		if terr := s.channel.Trigger(ctx, EventPageChange, view); terr != nil {
			return view, terr
		}
	}
	return view, nil
}

// Close stops the session's channel. Calling it again has no effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.channel.Destroy()
		close(s.done)
	})
}

// Done is closed once the session has been closed, whether by its
// connection ending or by the manager expiring it.
func (s *Session) Done() <-chan struct{} { return s.done }
