package pagestructure

import (
	"fmt"
	"io"
	"log"

	"golang.org/x/net/html"
)

// Parse builds a page from the document rooted at root.
func Parse(root *html.Node) *Page {
	p := NewPage()
	p.Parse(root)
	return p
}

// ParseHTML parses an HTML document and builds a page from it.
func ParseHTML(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return Parse(doc), nil
}

// Parse clears p and rebuilds it from the document rooted at root. Markers
// are visited once in document order. Malformed markers are skipped; the
// rest of the page is still modeled.
func (p *Page) Parse(root *html.Node) {
	p.Clear()
	w := walker{page: p}
	w.walk(root)
	w.closeContainer()
}

type walker struct {
	page      *Page
	container *Container
	component *Component
}

func (w *walker) walk(n *html.Node) {
	for ; n != nil; n = n.NextSibling {
		if n.Type == html.CommentNode {
			if m, ok := parseMarker(n.Data); ok {
				w.visit(n, m)
			}
		}
		if n.FirstChild != nil {
			w.walk(n.FirstChild)
		}
	}
}

func (w *walker) visit(n *html.Node, m Marker) {
	if m.IsEnd() {
		w.end(m.ID)
		return
	}
	switch m.kind() {
	case TypeContainer:
		w.startContainer(n, m)
	case TypeComponent:
		w.startComponent(n, m)
	case TypePageMeta:
		w.page.Meta = Meta{
			PageID:        m.PageID,
			MountID:       m.MountID,
			SiteID:        m.SiteID,
			ChannelID:     m.ChannelID,
			RenderVariant: m.RenderVariant,
		}
	case TypeContentLink, TypeCMSLink, TypeEditMenuLink:
		if m.ID == "" {
			return
		}
		w.page.links = append(w.page.links, Link{
			Type:    m.kind(),
			ID:      m.ID,
			URL:     m.URL,
			element: nextElement(n),
		})
	}
}

func (w *walker) startContainer(n *html.Node, m Marker) {
	// A container never nests inside another; an unterminated one ends here.
	w.closeContainer()

	box := nextElement(n)
	if m.ID == "" || box == nil {
		log.Printf("pagestructure: skipping container %q without id or element", m.Label)
		return
	}
	if _, dup := w.page.containerIDs[m.ID]; dup {
		log.Printf("pagestructure: skipping duplicate container %s", m.ID)
		return
	}

	c := &Container{
		ID:           m.ID,
		Label:        m.Label,
		XType:        m.XType,
		RefNS:        m.RefNS,
		URL:          m.URL,
		LastModified: parseInt64(m.LastModified),
		LockedBy:     m.LockedBy,
		element:      box,
	}
	c.Disabled = m.Inherited == "true" || (m.LockedBy != "" && m.LockedByCurrentUser != "true")
	w.page.containers = append(w.page.containers, c)
	w.page.containerIDs[c.ID] = c
	w.page.byElement[box] = c
	w.container = c
}

func (w *walker) startComponent(n *html.Node, m Marker) {
	if w.container == nil {
		return
	}
	el := nextElement(n)
	if m.ID == "" || el == nil {
		return
	}
	if _, dup := w.page.componentIDs[m.ID]; dup {
		return
	}
	comp := &Component{
		ID:            m.ID,
		Label:         m.Label,
		RenderVariant: m.RenderVariant,
		RefNS:         m.RefNS,
		URL:           m.URL,
		LastModified:  parseInt64(m.LastModified),
		element:       el,
	}
	w.container.appendComponent(comp)
	w.page.componentIDs[comp.ID] = comp
	w.page.byElement[el] = comp
	w.component = comp
}

func (w *walker) end(id string) {
	switch {
	case w.component != nil && w.component.ID == id:
		w.component = nil
	case w.container != nil && w.container.ID == id:
		w.closeContainer()
	}
}

func (w *walker) closeContainer() {
	w.container = nil
	w.component = nil
}

// nextElement returns the first element sibling following n.
func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}
