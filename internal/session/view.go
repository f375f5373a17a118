package session

import (
	"github.com/matthewbaird/pagecomposer/internal/dragdrop"
	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
)

// PageView is the JSON form of a page model sent to the peer.
type PageView struct {
	PageID     string          `json:"pageId"`
	ChannelID  string          `json:"channelId,omitempty"`
	Containers []ContainerView `json:"containers"`
}

type ContainerView struct {
	ID           string          `json:"id"`
	Label        string          `json:"label,omitempty"`
	XType        string          `json:"xtype,omitempty"`
	Disabled     bool            `json:"disabled,omitempty"`
	LockedBy     string          `json:"lockedBy,omitempty"`
	LastModified int64           `json:"lastModified"`
	Components   []ComponentView `json:"components"`
}

type ComponentView struct {
	ID            string `json:"id"`
	Label         string `json:"label,omitempty"`
	RenderVariant string `json:"renderVariant,omitempty"`
}

// DropView describes a completed move.
type DropView struct {
	ComponentID       string   `json:"componentId,omitempty"`
	SourceContainerID string   `json:"sourceContainerId,omitempty"`
	TargetContainerID string   `json:"targetContainerId,omitempty"`
	Changed           []string `json:"changed"`
	Cancelled         bool     `json:"cancelled,omitempty"`
}

func viewOf(p *pagestructure.Page) PageView {
	v := PageView{
		PageID:     p.Meta.PageID,
		ChannelID:  p.Meta.ChannelID,
		Containers: []ContainerView{},
	}
	for _, c := range p.Containers() {
		cv := ContainerView{
			ID:           c.ID,
			Label:        c.Label,
			XType:        c.XType,
			Disabled:     c.Disabled,
			LockedBy:     c.LockedBy,
			LastModified: c.LastModified,
			Components:   []ComponentView{},
		}
		for _, comp := range c.Components() {
			cv.Components = append(cv.Components, ComponentView{
				ID:            comp.ID,
				Label:         comp.Label,
				RenderVariant: comp.RenderVariant,
			})
		}
		v.Containers = append(v.Containers, cv)
	}
	return v
}

func dropViewOf(res dragdrop.Result) DropView {
	v := DropView{Cancelled: res.Cancelled, Changed: []string{}}
	if res.Component != nil {
		v.ComponentID = res.Component.ID
	}
	if res.Source != nil {
		v.SourceContainerID = res.Source.ID
	}
	if res.Target != nil {
		v.TargetContainerID = res.Target.ID
	}
	for _, c := range res.Changed {
		v.Changed = append(v.Changed, c.ID)
	}
	return v
}
