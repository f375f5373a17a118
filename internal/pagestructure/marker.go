package pagestructure

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Marker types carried in the HST-Type field of a metadata comment.
const (
	TypeContainer     = "CONTAINER_COMPONENT"
	TypeComponent     = "CONTAINER_ITEM_COMPONENT"
	TypePageMeta      = "PAGE-META-DATA"
	TypeContentLink   = "CONTENT_LINK"
	TypeCMSLink       = "CMSLINK"
	TypeEditMenuLink  = "EDIT_MENU_LINK"
	endMarkerSentinel = "true"
)

// Marker is the JSON body of a metadata comment emitted by the delivery tier.
type Marker struct {
	Type                string `json:"HST-Type,omitempty"`
	LegacyType          string `json:"type,omitempty"`
	End                 string `json:"HST-End,omitempty"`
	ID                  string `json:"uuid,omitempty"`
	URL                 string `json:"url,omitempty"`
	RefNS               string `json:"refNS,omitempty"`
	Label               string `json:"HST-Label,omitempty"`
	XType               string `json:"HST-XType,omitempty"`
	LastModified        string `json:"HST-LastModified,omitempty"`
	LockedBy            string `json:"HST-LockedBy,omitempty"`
	LockedByCurrentUser string `json:"HST-LockedBy-Current-User,omitempty"`
	Inherited           string `json:"HST-Inherited,omitempty"`
	RenderVariant       string `json:"HST-Render-Variant,omitempty"`

	PageID    string `json:"HST-Page-Id,omitempty"`
	MountID   string `json:"HST-Mount-Id,omitempty"`
	SiteID    string `json:"HST-Site-Id,omitempty"`
	ChannelID string `json:"HST-Channel-Id,omitempty"`
}

// kind returns the marker type, preferring HST-Type over the legacy field.
func (m Marker) kind() string {
	if m.Type != "" {
		return m.Type
	}
	return m.LegacyType
}

// IsEnd reports whether m closes a container or component.
func (m Marker) IsEnd() bool {
	return m.End == endMarkerSentinel
}

// parseMarker decodes a comment body. ok is false for ordinary comments.
func parseMarker(data string) (Marker, bool) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "{") {
		return Marker{}, false
	}
	var m Marker
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return Marker{}, false
	}
	if m.kind() == "" && !m.IsEnd() {
		return Marker{}, false
	}
	return m, true
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Comment renders m as the text of an HTML comment.
func (m Marker) Comment() string {
	b, _ := json.Marshal(m)
	return "<!-- " + string(b) + " -->"
}

// EndMarker returns the marker that closes the container or component id.
func EndMarker(id string) Marker {
	return Marker{End: endMarkerSentinel, ID: id}
}
