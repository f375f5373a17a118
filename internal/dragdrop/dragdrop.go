// Package dragdrop turns pointer gestures performed over the editor overlay
// into component moves. A drop is applied to the page model first and then
// persisted container by container; when persisting fails the editor is told
// and the page is reloaded, since the optimistic state can no longer be trusted.
package dragdrop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/net/html"

	"github.com/matthewbaird/pagecomposer/internal/event"
	"github.com/matthewbaird/pagecomposer/internal/geometry"
	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
)

// State is the synchronizer's gesture state.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mouse event types dispatched into the preview frame.
const (
	MouseDown = "mousedown"
	MouseMove = "mousemove"
)

var (
	ErrAlreadyDragging = errors.New("dragdrop: a drag is already in progress")
	ErrNotDragging     = errors.New("dragdrop: no drag in progress")
	ErrNotAComponent   = errors.New("dragdrop: element is not part of a component")
	ErrContainerLocked = errors.New("dragdrop: container is locked")
)

// Persister stores the order of one container and returns the stored form.
type Persister interface {
	UpdateContainer(ctx context.Context, id string, rep pagestructure.Representation) (pagestructure.Representation, error)
}

// FrameDispatcher synthesizes a mouse event inside the preview frame at
// frame-relative coordinates.
type FrameDispatcher interface {
	DispatchMouseEvent(ctx context.Context, eventType string, at geometry.Point) error
}

// Notifier shows an error to the user.
type Notifier interface {
	Error(ctx context.Context, key string, params map[string]string)
}

// Reloader re-renders the preview and rebuilds the page model.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event)
}

// Result describes the outcome of a drop.
type Result struct {
	Component *pagestructure.Component
	Source    *pagestructure.Container
	Target    *pagestructure.Container
	// Changed lists the containers whose order changed and were persisted.
	Changed   []*pagestructure.Container
	Cancelled bool
}

// Synchronizer coordinates one drag gesture at a time over a page.
type Synchronizer struct {
	mu       sync.Mutex
	page     *pagestructure.Page
	state    State
	dragged  *pagestructure.Component
	source   *pagestructure.Container
	// gesture is set when the drag began with Start and drag:start was published.
	gesture  bool
	viewport geometry.Viewport

	persister  Persister
	dispatcher FrameDispatcher
	notifier   Notifier
	reloader   Reloader
	publisher  Publisher
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

func WithDispatcher(d FrameDispatcher) Option { return func(s *Synchronizer) { s.dispatcher = d } }
func WithNotifier(n Notifier) Option          { return func(s *Synchronizer) { s.notifier = n } }
func WithReloader(r Reloader) Option          { return func(s *Synchronizer) { s.reloader = r } }
func WithPublisher(p Publisher) Option        { return func(s *Synchronizer) { s.publisher = p } }

// WithViewport sets the initial frame geometry.
func WithViewport(v geometry.Viewport) Option { return func(s *Synchronizer) { s.viewport = v } }

// New creates a synchronizer over page.
func New(page *pagestructure.Page, persister Persister, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		page:      page,
		persister: persister,
		viewport:  geometry.Identity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current gesture state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetViewport updates the frame geometry used to transform pointer positions.
func (s *Synchronizer) SetViewport(v geometry.Viewport) {
	s.mu.Lock()
	s.viewport = v
	s.mu.Unlock()
}

// SetPage replaces the page model after a reparse. An active drag is dropped
// without any change.
func (s *Synchronizer) SetPage(page *pagestructure.Page) {
	s.mu.Lock()
	s.page = page
	s.reset()
	s.mu.Unlock()
}

// Start begins dragging the component that contains source. pointer is the
// page position of the gesture on the overlay.
func (s *Synchronizer) Start(ctx context.Context, source *html.Node, pointer geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return ErrAlreadyDragging
	}
	comp, ok := s.page.ComponentByElement(source)
	if !ok {
		return ErrNotAComponent
	}
	container := comp.Container()
	if container.Disabled {
		return fmt.Errorf("%w: %s", ErrContainerLocked, container.ID)
	}

	if err := s.dispatch(ctx, MouseDown, pointer); err != nil {
		return err
	}
	s.state = Dragging
	s.dragged = comp
	s.source = container
	s.gesture = true
	s.publish(ctx, event.NewDragStarted(event.DragPayload{ComponentID: comp.ID, ContainerID: container.ID}))
	return nil
}

// Move forwards a pointer move to the frame so its drag feedback follows
// the cursor.
func (s *Synchronizer) Move(ctx context.Context, pointer geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return ErrNotDragging
	}
	return s.dispatch(ctx, MouseMove, pointer)
}

// Cancel ends the gesture without changing anything.
func (s *Synchronizer) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return ErrNotDragging
	}
	s.cancel(ctx)
	return nil
}

func (s *Synchronizer) cancel(ctx context.Context) {
	if s.gesture {
		s.publish(ctx, event.NewDragCancelled(event.DragPayload{ComponentID: s.dragged.ID, ContainerID: s.source.ID}))
	}
	s.reset()
}

func (s *Synchronizer) reset() {
	s.state = Idle
	s.dragged = nil
	s.source = nil
	s.gesture = false
}

// Drop completes the gesture. target is the element the drag library
// reported as the drop container and next the element of the component to
// insert before; a nil next appends. A nil or unknown target cancels.
//
// The page model is updated before any container is persisted. If a
// container fails to persist the user is notified and the page reloaded;
// the returned error joins every persistence failure.
func (s *Synchronizer) Drop(ctx context.Context, target, next *html.Node) (Result, error) {
	s.mu.Lock()
	if s.state != Dragging {
		s.mu.Unlock()
		return Result{}, ErrNotDragging
	}
	return s.drop(ctx, target, next)
}

// Place moves the component containing source without a pointer gesture,
// for moves picked from a menu. Nothing is dispatched to the frame; the
// move is applied and persisted exactly like a drop.
func (s *Synchronizer) Place(ctx context.Context, source, target, next *html.Node) (Result, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return Result{}, ErrAlreadyDragging
	}
	comp, ok := s.page.ComponentByElement(source)
	if !ok {
		s.mu.Unlock()
		return Result{}, ErrNotAComponent
	}
	if container := comp.Container(); container.Disabled {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrContainerLocked, container.ID)
	}
	s.state = Dragging
	s.dragged = comp
	s.source = comp.Container()
	return s.drop(ctx, target, next)
}

// drop must be called with s.mu held; it releases it.
func (s *Synchronizer) drop(ctx context.Context, target, next *html.Node) (Result, error) {
	res := Result{Component: s.dragged, Source: s.source}
	targetContainer, ok := s.page.ContainerByElement(target)
	if target == nil || !ok {
		s.cancel(ctx)
		s.mu.Unlock()
		res.Cancelled = true
		return res, nil
	}
	res.Target = targetContainer
	if targetContainer.Disabled {
		s.cancel(ctx)
		s.mu.Unlock()
		res.Cancelled = true
		return res, fmt.Errorf("%w: %s", ErrContainerLocked, targetContainer.ID)
	}

	var nextComp *pagestructure.Component
	if next != nil {
		if c, ok := s.page.ComponentByElement(next); ok && c.Container() == targetContainer {
			nextComp = c
		}
	}

	changed, err := s.page.Move(s.dragged, targetContainer, nextComp)
	if err != nil {
		s.cancel(ctx)
		s.mu.Unlock()
		res.Cancelled = true
		return res, err
	}
	res.Changed = changed
	drop := event.DropPayload{
		ComponentID:       s.dragged.ID,
		SourceContainerID: s.source.ID,
		TargetContainerID: targetContainer.ID,
	}
	if nextComp != nil {
		drop.NextComponentID = nextComp.ID
	}
	s.publish(ctx, event.NewDragDropped(drop))
	s.reset()
	s.mu.Unlock()

	return res, s.persist(ctx, changed)
}

// persist stores every changed container. It runs without the lock so a
// reload triggered by a failure can replace the page.
func (s *Synchronizer) persist(ctx context.Context, changed []*pagestructure.Container) error {
	var errs []error
	for _, c := range changed {
		stored, err := s.persister.UpdateContainer(ctx, c.ID, c.Representation())
		if err != nil {
			log.Printf("dragdrop: persisting container %s: %v", c.ID, err)
			s.publish(ctx, event.NewContainerFailed(c.ID, err))
			errs = append(errs, fmt.Errorf("container %s: %w", c.ID, err))
			continue
		}
		if stored.LastModified != 0 {
			c.LastModified = stored.LastModified
		}
		s.publish(ctx, event.NewContainerUpdated(c.ID))
	}
	if len(errs) == 0 {
		return nil
	}

	err := errors.Join(errs...)
	if s.notifier != nil {
		s.notifier.Error(ctx, "ERROR_UPDATE_COMPONENT", map[string]string{"error": err.Error()})
	}
	if s.reloader != nil {
		if rerr := s.reloader.Reload(ctx); rerr != nil {
			log.Printf("dragdrop: reloading after failed update: %v", rerr)
		}
	}
	return err
}

func (s *Synchronizer) dispatch(ctx context.Context, eventType string, pointer geometry.Point) error {
	if s.dispatcher == nil {
		return nil
	}
	at := s.viewport.ToFrame(pointer).Round()
	if err := s.dispatcher.DispatchMouseEvent(ctx, eventType, at); err != nil {
		return fmt.Errorf("dispatching %s: %w", eventType, err)
	}
	return nil
}

func (s *Synchronizer) publish(ctx context.Context, evt event.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, evt)
	}
}
