// Package geometry converts pointer coordinates between the editor page and
// the (possibly scaled and offset) preview frame embedded in it.
package geometry

import "math"

// Point is a position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p translated by -q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Viewport describes where the preview frame sits on the editor page.
//
// When Scale is 1 the frame is positioned by FrameOffset. When the frame is
// scaled it is anchored to the top-right corner of an unscaled base element:
// BaseOffset is that element's page offset and BaseWidth its width.
type Viewport struct {
	Scale       float64 `json:"scale"`
	FrameOffset Point   `json:"frameOffset"`
	BaseOffset  Point   `json:"baseOffset"`
	BaseWidth   float64 `json:"baseWidth"`
	// Scroll is the frame document's scroll position.
	Scroll Point `json:"scroll"`
}

// Identity is a viewport with unit scale and no offsets.
var Identity = Viewport{Scale: 1}

func (v Viewport) scale() float64 {
	if v.Scale <= 0 {
		return 1
	}
	return v.Scale
}

// Scaled reports whether a non-unit scale factor is active.
func (v Viewport) Scaled() bool {
	return v.scale() != 1
}

// shiftX is the horizontal gap that scaling opens up to the left of a frame
// anchored to the right edge of the base element.
func (v Viewport) shiftX() float64 {
	return v.BaseWidth * (1 - v.scale())
}

// ToFrame maps a page position to the client position the frame's own
// unscaled document would have received natively.
func (v Viewport) ToFrame(page Point) Point {
	if !v.Scaled() {
		return page.Sub(v.FrameOffset)
	}
	s := v.scale()
	return Point{
		X: (page.X - v.BaseOffset.X - v.shiftX()) / s,
		Y: (page.Y - v.BaseOffset.Y) / s,
	}
}

// FromFrame is the inverse of ToFrame.
func (v Viewport) FromFrame(frame Point) Point {
	if !v.Scaled() {
		return frame.Add(v.FrameOffset)
	}
	s := v.scale()
	return Point{
		X: frame.X*s + v.BaseOffset.X + v.shiftX(),
		Y: frame.Y*s + v.BaseOffset.Y,
	}
}

// ToDocument maps a page position to a position in the frame document,
// taking the frame's scroll position into account.
func (v Viewport) ToDocument(page Point) Point {
	return v.ToFrame(page).Add(v.Scroll)
}

// Round returns p with both coordinates rounded to whole pixels, which is
// what the frame receives in a synthesized mouse event.
func (p Point) Round() Point {
	return Point{X: math.Round(p.X), Y: math.Round(p.Y)}
}

// Near reports whether p and q are within tolerance on both axes.
func (p Point) Near(q Point, tolerance float64) bool {
	return math.Abs(p.X-q.X) <= tolerance && math.Abs(p.Y-q.Y) <= tolerance
}
