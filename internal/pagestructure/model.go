// Package pagestructure mirrors the container/component tree of a rendered
// preview page. The tree is rebuilt from the metadata comments the delivery
// tier embeds in the page, and is the source of truth for drag and drop:
// elements are kept only as handles for lookups.
//
// A Page is not safe for concurrent use.
package pagestructure

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/net/html"
)

var (
	ErrNotInContainer = errors.New("pagestructure: component not in container")
	ErrUnknown        = errors.New("pagestructure: unknown container or component")
)

// Component is a single renderable unit placed in a container.
type Component struct {
	ID            string
	Label         string
	RenderVariant string
	RefNS         string
	URL           string
	LastModified  int64

	container *Container
	element   *html.Node
}

// Container returns the container that currently holds c.
func (c *Component) Container() *Container { return c.container }

// ContainerID returns the id of the owning container.
func (c *Component) ContainerID() string {
	if c.container == nil {
		return ""
	}
	return c.container.ID
}

// Element returns the element c was parsed from.
func (c *Component) Element() *html.Node { return c.element }

// Container is an ordered drop target.
type Container struct {
	ID           string
	Label        string
	XType        string
	RefNS        string
	URL          string
	LastModified int64
	LockedBy     string
	// Disabled containers are locked by another editor or inherited and
	// cannot be changed.
	Disabled bool

	components []*Component
	element    *html.Node
}

// Element returns the box element of the container.
func (c *Container) Element() *html.Node { return c.element }

// Components returns the components in order.
func (c *Container) Components() []*Component {
	out := make([]*Component, len(c.components))
	copy(out, c.components)
	return out
}

// ComponentIDs returns the ids of the components in order.
func (c *Container) ComponentIDs() []string {
	ids := make([]string, len(c.components))
	for i, comp := range c.components {
		ids[i] = comp.ID
	}
	return ids
}

// IndexOf returns the position of comp, or -1.
func (c *Container) IndexOf(comp *Component) int {
	for i, existing := range c.components {
		if existing == comp {
			return i
		}
	}
	return -1
}

// IsEmpty reports whether the container has no components.
func (c *Container) IsEmpty() bool { return len(c.components) == 0 }

// remove takes comp out of the container.
func (c *Container) remove(comp *Component) bool {
	i := c.IndexOf(comp)
	if i < 0 {
		return false
	}
	c.components = append(c.components[:i], c.components[i+1:]...)
	comp.container = nil
	return true
}

func (c *Container) appendComponent(comp *Component) {
	c.components = append(c.components, comp)
	comp.container = c
}

// insertBefore adds comp in front of next, or at the end when next is nil.
func (c *Container) insertBefore(comp, next *Component) error {
	at := len(c.components)
	if next != nil {
		at = c.IndexOf(next)
		if at < 0 {
			return fmt.Errorf("%w: %s not in %s", ErrNotInContainer, next.ID, c.ID)
		}
	}
	c.components = append(c.components, nil)
	copy(c.components[at+1:], c.components[at:])
	c.components[at] = comp
	comp.container = c
	return nil
}

// Representation is the server-side form of a container used to persist
// its order.
type Representation struct {
	ID           string   `json:"id"`
	Label        string   `json:"label,omitempty"`
	XType        string   `json:"xtype,omitempty"`
	LastModified int64    `json:"lastModified"`
	Children     []string `json:"children"`
}

// Representation returns the persistable form of c.
func (c *Container) Representation() Representation {
	return Representation{
		ID:           c.ID,
		Label:        c.Label,
		XType:        c.XType,
		LastModified: c.LastModified,
		Children:     c.ComponentIDs(),
	}
}

// Link is a content or menu link found in the page.
type Link struct {
	Type    string
	ID      string
	URL     string
	element *html.Node
}

// Element returns the element the link decorates.
func (l Link) Element() *html.Node { return l.element }

// Meta is the page-level metadata.
type Meta struct {
	PageID        string
	MountID       string
	SiteID        string
	ChannelID     string
	RenderVariant string
}

// Page is the mirror of one rendered page.
type Page struct {
	Meta Meta

	containers   []*Container
	containerIDs map[string]*Container
	componentIDs map[string]*Component
	byElement    map[*html.Node]any
	links        []Link
}

// NewPage returns an empty page.
func NewPage() *Page {
	p := &Page{}
	p.Clear()
	return p
}

// Clear discards all modeled state.
func (p *Page) Clear() {
	p.Meta = Meta{}
	p.containers = nil
	p.containerIDs = make(map[string]*Container)
	p.componentIDs = make(map[string]*Component)
	p.byElement = make(map[*html.Node]any)
	p.links = nil
}

// Containers returns the containers in document order.
func (p *Page) Containers() []*Container {
	out := make([]*Container, len(p.containers))
	copy(out, p.containers)
	return out
}

// Links returns the content and menu links in document order.
func (p *Page) Links() []Link {
	out := make([]Link, len(p.links))
	copy(out, p.links)
	return out
}

// ContainerByID returns the container with the given id.
func (p *Page) ContainerByID(id string) (*Container, bool) {
	c, ok := p.containerIDs[id]
	return c, ok
}

// ComponentByID returns the component with the given id.
func (p *Page) ComponentByID(id string) (*Component, bool) {
	c, ok := p.componentIDs[id]
	return c, ok
}

// ContainerByElement returns the container whose box element is n or an
// ancestor of n.
func (p *Page) ContainerByElement(n *html.Node) (*Container, bool) {
	for ; n != nil; n = n.Parent {
		if c, ok := p.byElement[n].(*Container); ok {
			return c, true
		}
	}
	return nil, false
}

// ComponentByElement returns the component whose element is n or an
// ancestor of n.
func (p *Page) ComponentByElement(n *html.Node) (*Component, bool) {
	for ; n != nil; n = n.Parent {
		switch entity := p.byElement[n].(type) {
		case *Component:
			return entity, true
		case *Container:
			// Crossed a container boundary without finding a component.
			return nil, false
		}
	}
	return nil, false
}

// Move takes comp out of its container and inserts it into target in front
// of next, or at the end when next is nil. It returns the containers whose
// order changed.
func (p *Page) Move(comp *Component, target *Container, next *Component) ([]*Container, error) {
	source := comp.container
	if source == nil || p.componentIDs[comp.ID] != comp || p.containerIDs[target.ID] != target {
		return nil, ErrUnknown
	}
	if next == comp {
		return nil, nil
	}
	if next != nil && next.container != target {
		return nil, fmt.Errorf("%w: %s not in %s", ErrNotInContainer, next.ID, target.ID)
	}

	from := source.IndexOf(comp)
	source.remove(comp)
	if err := target.insertBefore(comp, next); err != nil {
		// Put it back where it was.
		source.components = append(source.components, nil)
		copy(source.components[from+1:], source.components[from:])
		source.components[from] = comp
		comp.container = source
		return nil, err
	}

	if source == target {
		if target.IndexOf(comp) == from {
			return nil, nil
		}
		return []*Container{target}, nil
	}
	return []*Container{source, target}, nil
}

// Remove deletes comp from the page, e.g. after it was deleted server-side.
func (p *Page) Remove(comp *Component) bool {
	if p.componentIDs[comp.ID] != comp {
		return false
	}
	if comp.container != nil {
		comp.container.remove(comp)
	}
	delete(p.componentIDs, comp.ID)
	if comp.element != nil {
		delete(p.byElement, comp.element)
	}
	return true
}

func (p *Page) String() string {
	return "page " + p.Meta.PageID + " (" + strconv.Itoa(len(p.containers)) + " containers, " +
		strconv.Itoa(len(p.componentIDs)) + " components)"
}
