package hst

import (
	"bytes"
	"context"
	"html/template"
	"strconv"

	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{.Meta}}
{{range .Containers}}{{.Start}}
<div class="hst-container" data-container-id="{{.ID}}">
{{range .Components}}{{.Start}}<div class="hst-container-item" data-component-id="{{.ID}}">{{.Body}}</div>{{.End}}
{{end}}</div>
{{.End}}
{{end}}</body>
</html>
`

var previewTemplate = template.Must(template.New("preview").Parse(pageTemplate))

type renderComponent struct {
	ID         string
	Start, End template.HTML
	Body       template.HTML
}

type renderContainer struct {
	ID         string
	Start, End template.HTML
	Components []renderComponent
}

type renderData struct {
	Title      string
	Meta       template.HTML
	Containers []renderContainer
}

// Render produces the preview HTML of a page, with every container and item
// wrapped in the metadata comments the editor parses. user decides whether a
// locked container is reported as locked by the current user.
func Render(page Page, containers []ContainerRecord, user string) (string, error) {
	data := renderData{
		Title: page.Title,
		Meta: comment(pagestructure.Marker{
			Type:      pagestructure.TypePageMeta,
			PageID:    page.ID,
			ChannelID: page.ChannelID,
		}),
	}
	for _, c := range containers {
		start := pagestructure.Marker{
			Type:         pagestructure.TypeContainer,
			ID:           c.ID,
			Label:        c.Label,
			XType:        c.XType,
			URL:          "/_rp/" + c.ID,
			LastModified: strconv.FormatInt(c.LastModified, 10),
			LockedBy:     c.LockedBy,
		}
		if c.LockedBy != "" {
			start.LockedByCurrentUser = strconv.FormatBool(c.LockedBy == user)
		}
		rc := renderContainer{
			ID:    c.ID,
			Start: comment(start),
			End:   comment(pagestructure.EndMarker(c.ID)),
		}
		for _, comp := range c.Components {
			rc.Components = append(rc.Components, renderComponent{
				ID: comp.ID,
				Start: comment(pagestructure.Marker{
					Type:  pagestructure.TypeComponent,
					ID:    comp.ID,
					Label: comp.Label,
					URL:   "/_rp/" + comp.ID,
				}),
				End:  comment(pagestructure.EndMarker(comp.ID)),
				Body: template.HTML(comp.Body),
			})
		}
		data.Containers = append(data.Containers, rc)
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// comment renders a marker as trusted HTML. The JSON encoder escapes '<'
// and '>', so marker text cannot terminate the comment early.
func comment(m pagestructure.Marker) template.HTML {
	return template.HTML(m.Comment())
}

// PageSource renders stored pages for an editor session running next to
// the store.
type PageSource struct {
	Store Store
	User  string
}

// RenderPage loads the page with its containers and renders it.
func (s PageSource) RenderPage(ctx context.Context, pageID string) (string, error) {
	page, containers, err := s.Store.GetPage(ctx, pageID)
	if err != nil {
		return "", err
	}
	return Render(page, containers, s.User)
}
