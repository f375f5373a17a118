package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFrame_IdentityIsUnchanged(t *testing.T) {
	p := Point{X: 123.5, Y: 456}
	assert.Equal(t, p, Identity.ToFrame(p))
	assert.Equal(t, p, Viewport{}.ToFrame(p), "zero scale is treated as 1")
}

func TestToFrame_Offset(t *testing.T) {
	v := Viewport{Scale: 1, FrameOffset: Point{X: 200, Y: 50}}
	assert.Equal(t, Point{X: 10, Y: 20}, v.ToFrame(Point{X: 210, Y: 70}))
}

func TestToFrame_HalfScale(t *testing.T) {
	v := Viewport{
		Scale:       0.5,
		FrameOffset: Point{X: 999, Y: 999}, // ignored when scaled
		BaseOffset:  Point{X: 100, Y: 40},
		BaseWidth:   800,
	}
	// The scaled frame starts 400px into the base element.
	got := v.ToFrame(Point{X: 100 + 400 + 30, Y: 40 + 25})
	assert.Equal(t, Point{X: 60, Y: 50}, got)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Viewport
	}{
		{"identity", Identity},
		{"offset", Viewport{Scale: 1, FrameOffset: Point{X: 17, Y: 3}}},
		{"half", Viewport{Scale: 0.5, BaseOffset: Point{X: 12, Y: 80}, BaseWidth: 1024}},
		{"odd", Viewport{Scale: 0.37, BaseOffset: Point{X: 0.5, Y: 1.25}, BaseWidth: 777}},
	}
	points := []Point{{0, 0}, {10, 10}, {640.5, 333.25}, {-4, 1200}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, p := range points {
				back := tt.v.FromFrame(tt.v.ToFrame(p))
				assert.True(t, back.Near(p, 1e-9), "got %v want %v", back, p)
			}
		})
	}
}

func TestToDocument_AddsScroll(t *testing.T) {
	v := Viewport{Scale: 1, FrameOffset: Point{X: 10, Y: 10}, Scroll: Point{Y: 500}}
	assert.Equal(t, Point{X: 0, Y: 500}, v.ToDocument(Point{X: 10, Y: 10}))
}

func TestRound(t *testing.T) {
	assert.Equal(t, Point{X: 2, Y: -1}, Point{X: 1.5, Y: -1.4}.Round())
}
