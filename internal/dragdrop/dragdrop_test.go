package dragdrop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/matthewbaird/pagecomposer/internal/event"
	"github.com/matthewbaird/pagecomposer/internal/geometry"
	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
)

const testPage = `<html><body>
<!-- {"HST-Type":"CONTAINER_COMPONENT","uuid":"X","HST-LastModified":"10"} -->
<div id="X">
<!-- {"HST-Type":"CONTAINER_ITEM_COMPONENT","uuid":"c1"} --><div id="c1"><span id="c1-text">one</span></div><!-- {"HST-End":"true","uuid":"c1"} -->
<!-- {"HST-Type":"CONTAINER_ITEM_COMPONENT","uuid":"c2"} --><div id="c2"></div><!-- {"HST-End":"true","uuid":"c2"} -->
</div>
<!-- {"HST-End":"true","uuid":"X"} -->
<!-- {"HST-Type":"CONTAINER_COMPONENT","uuid":"Y","HST-LastModified":"20"} -->
<div id="Y">
<!-- {"HST-Type":"CONTAINER_ITEM_COMPONENT","uuid":"c3"} --><div id="c3"></div><!-- {"HST-End":"true","uuid":"c3"} -->
</div>
<!-- {"HST-End":"true","uuid":"Y"} -->
<!-- {"HST-Type":"CONTAINER_COMPONENT","uuid":"Z"} -->
<div id="Z"></div>
<!-- {"HST-End":"true","uuid":"Z"} -->
<!-- {"HST-Type":"CONTAINER_COMPONENT","uuid":"L","HST-LockedBy":"someone"} -->
<div id="L">
<!-- {"HST-Type":"CONTAINER_ITEM_COMPONENT","uuid":"c4"} --><div id="c4"></div><!-- {"HST-End":"true","uuid":"c4"} -->
</div>
<!-- {"HST-End":"true","uuid":"L"} -->
<p id="outside"></p>
</body></html>`

type persistCall struct {
	id       string
	children []string
}

type fakePersister struct {
	mu    sync.Mutex
	calls []persistCall
	fail  map[string]error
}

func (p *fakePersister) UpdateContainer(_ context.Context, id string, rep pagestructure.Representation) (pagestructure.Representation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, persistCall{id: id, children: rep.Children})
	if err := p.fail[id]; err != nil {
		return pagestructure.Representation{}, err
	}
	rep.LastModified++
	return rep, nil
}

type dispatched struct {
	typ string
	at  geometry.Point
}

type fakeDispatcher struct{ events []dispatched }

func (d *fakeDispatcher) DispatchMouseEvent(_ context.Context, typ string, at geometry.Point) error {
	d.events = append(d.events, dispatched{typ, at})
	return nil
}

type fakeNotifier struct{ keys []string }

func (n *fakeNotifier) Error(_ context.Context, key string, _ map[string]string) {
	n.keys = append(n.keys, key)
}

type fakeReloader struct{ count int }

func (r *fakeReloader) Reload(context.Context) error {
	r.count++
	return nil
}

type fakePublisher struct{ names []string }

func (p *fakePublisher) Publish(_ context.Context, evt event.Event) {
	p.names = append(p.names, evt.Name)
}

type fixture struct {
	doc        *html.Node
	page       *pagestructure.Page
	persister  *fakePersister
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	reloader   *fakeReloader
	publisher  *fakePublisher
	sync       *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(testPage))
	require.NoError(t, err)
	f := &fixture{
		doc:        doc,
		page:       pagestructure.Parse(doc),
		persister:  &fakePersister{},
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
		reloader:   &fakeReloader{},
		publisher:  &fakePublisher{},
	}
	f.sync = New(f.page, f.persister,
		WithDispatcher(f.dispatcher),
		WithNotifier(f.notifier),
		WithReloader(f.reloader),
		WithPublisher(f.publisher),
	)
	return f
}

func (f *fixture) el(t *testing.T, id string) *html.Node {
	t.Helper()
	var find func(*html.Node) *html.Node
	find = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val == id {
					return n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := find(c); found != nil {
				return found
			}
		}
		return nil
	}
	n := find(f.doc)
	require.NotNil(t, n, "element %s", id)
	return n
}

func (f *fixture) children(t *testing.T, id string) []string {
	t.Helper()
	c, ok := f.page.ContainerByID(id)
	require.True(t, ok)
	return c.ComponentIDs()
}

func TestDrop_AcrossContainers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1-text"), geometry.Point{X: 5, Y: 5}))
	assert.Equal(t, Dragging, f.sync.State())

	res, err := f.sync.Drop(ctx, f.el(t, "Y"), f.el(t, "c3"))
	require.NoError(t, err)

	assert.Equal(t, Idle, f.sync.State())
	assert.False(t, res.Cancelled)
	assert.Equal(t, "c1", res.Component.ID)
	assert.Equal(t, "X", res.Source.ID)
	assert.Equal(t, "Y", res.Target.ID)
	assert.Equal(t, []string{"c2"}, f.children(t, "X"))
	assert.Equal(t, []string{"c1", "c3"}, f.children(t, "Y"))
	assert.Equal(t, []persistCall{
		{id: "X", children: []string{"c2"}},
		{id: "Y", children: []string{"c1", "c3"}},
	}, f.persister.calls)

	x, _ := f.page.ContainerByID("X")
	assert.Equal(t, int64(11), x.LastModified, "stored lastModified is kept for the next update")
	assert.Equal(t, []string{
		event.DragStarted, event.DragDropped, event.ContainerUpdated, event.ContainerUpdated,
	}, f.publisher.names)
}

func TestDrop_WithinContainerToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	_, err := f.sync.Drop(ctx, f.el(t, "X"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"c2", "c1"}, f.children(t, "X"))
	assert.Equal(t, []persistCall{{id: "X", children: []string{"c2", "c1"}}}, f.persister.calls)
}

func TestDrop_IntoEmptyContainer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c3"), geometry.Point{}))
	_, err := f.sync.Drop(ctx, f.el(t, "Z"), nil)
	require.NoError(t, err)

	assert.Empty(t, f.children(t, "Y"))
	assert.Equal(t, []string{"c3"}, f.children(t, "Z"))
	assert.Len(t, f.persister.calls, 2)
}

func TestDrop_SamePositionPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	res, err := f.sync.Drop(ctx, f.el(t, "X"), f.el(t, "c2"))
	require.NoError(t, err)

	assert.Empty(t, res.Changed)
	assert.Empty(t, f.persister.calls)
	assert.Equal(t, []string{"c1", "c2"}, f.children(t, "X"))
}

func TestDrop_OutsideAnyContainerCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	res, err := f.sync.Drop(ctx, f.el(t, "outside"), nil)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, Idle, f.sync.State())
	assert.Empty(t, f.persister.calls)
	assert.Equal(t, []string{"c1", "c2"}, f.children(t, "X"))
	assert.Equal(t, []string{event.DragStarted, event.DragCancelled}, f.publisher.names)
}

func TestDrop_NilTargetCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	res, err := f.sync.Drop(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Empty(t, f.persister.calls)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.sync.Cancel(ctx), ErrNotDragging)
	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	require.NoError(t, f.sync.Cancel(ctx))

	assert.Equal(t, Idle, f.sync.State())
	assert.Empty(t, f.persister.calls)
	_, err := f.sync.Drop(ctx, f.el(t, "Y"), nil)
	assert.ErrorIs(t, err, ErrNotDragging)
}

func TestStart_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.sync.Start(ctx, f.el(t, "outside"), geometry.Point{}), ErrNotAComponent)
	assert.ErrorIs(t, f.sync.Start(ctx, f.el(t, "X"), geometry.Point{}), ErrNotAComponent)
	assert.ErrorIs(t, f.sync.Start(ctx, f.el(t, "c4"), geometry.Point{}), ErrContainerLocked)
	assert.Equal(t, Idle, f.sync.State())

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	assert.ErrorIs(t, f.sync.Start(ctx, f.el(t, "c2"), geometry.Point{}), ErrAlreadyDragging)
}

func TestDrop_IntoLockedContainerIsRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	res, err := f.sync.Drop(ctx, f.el(t, "L"), nil)
	assert.ErrorIs(t, err, ErrContainerLocked)
	assert.True(t, res.Cancelled)
	assert.Equal(t, Idle, f.sync.State())
	assert.Equal(t, []string{"c4"}, f.children(t, "L"))
	assert.Empty(t, f.persister.calls)
}

func TestDrop_PersistFailureNotifiesAndReloads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("409 conflict")
	f.persister.fail = map[string]error{"Y": boom}

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	_, err := f.sync.Drop(ctx, f.el(t, "Y"), nil)

	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.persister.calls, 2, "every changed container is still attempted")
	assert.Equal(t, []string{"ERROR_UPDATE_COMPONENT"}, f.notifier.keys)
	assert.Equal(t, 1, f.reloader.count)
	assert.Contains(t, f.publisher.names, event.ContainerFailed)
}

func TestPointerIsTransformedIntoFrame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sync.SetViewport(geometry.Viewport{Scale: 0.5, BaseOffset: geometry.Point{X: 100, Y: 50}, BaseWidth: 800})

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{X: 510, Y: 60}))
	require.NoError(t, f.sync.Move(ctx, geometry.Point{X: 520.4, Y: 70}))

	assert.Equal(t, []dispatched{
		{MouseDown, geometry.Point{X: 20, Y: 20}},
		{MouseMove, geometry.Point{X: 41, Y: 40}},
	}, f.dispatcher.events)
}

func TestMove_RequiresDrag(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.sync.Move(context.Background(), geometry.Point{}), ErrNotDragging)
}

func TestSetPage_AbandonsDrag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	f.sync.SetPage(pagestructure.Parse(f.doc))
	assert.Equal(t, Idle, f.sync.State())
}

func TestPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.sync.Place(ctx, f.el(t, "c3"), f.el(t, "X"), f.el(t, "c2"))
	require.NoError(t, err)

	assert.Equal(t, Idle, f.sync.State())
	assert.Equal(t, "Y", res.Source.ID)
	assert.Equal(t, []string{"c1", "c3", "c2"}, f.children(t, "X"))
	assert.Empty(t, f.children(t, "Y"))
	assert.Empty(t, f.dispatcher.events, "no pointer events for a placed move")
	assert.Len(t, f.persister.calls, 2)
	assert.Equal(t, []string{event.DragDropped, event.ContainerUpdated, event.ContainerUpdated}, f.publisher.names)
}

func TestPlace_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.sync.Place(ctx, f.el(t, "outside"), f.el(t, "X"), nil)
	assert.ErrorIs(t, err, ErrNotAComponent)
	_, err = f.sync.Place(ctx, f.el(t, "c4"), f.el(t, "X"), nil)
	assert.ErrorIs(t, err, ErrContainerLocked)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	_, err = f.sync.Place(ctx, f.el(t, "c2"), f.el(t, "Y"), nil)
	assert.ErrorIs(t, err, ErrAlreadyDragging)
	assert.Empty(t, f.persister.calls)
}

func TestPlace_CancelledWithoutGestureEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.sync.Place(ctx, f.el(t, "c1"), f.el(t, "L"), nil)
	assert.ErrorIs(t, err, ErrContainerLocked)
	assert.True(t, res.Cancelled)

	res, err = f.sync.Place(ctx, f.el(t, "c1"), f.el(t, "outside"), nil)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)

	assert.Equal(t, Idle, f.sync.State())
	assert.Empty(t, f.publisher.names, "a placed move never starts a drag")
	assert.Empty(t, f.persister.calls)

	require.NoError(t, f.sync.Start(ctx, f.el(t, "c1"), geometry.Point{}))
	require.NoError(t, f.sync.Cancel(ctx))
	assert.Equal(t, []string{event.DragStarted, event.DragCancelled}, f.publisher.names)
}
