// Package layout checks labeled bounding boxes of a rendered scene for overlap
// and for leaving the visible frame.
package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Default frame geometry of the renderer, in scene units.
const (
	DefaultFrameWidth  = 14.222
	DefaultFrameHeight = 8.0
	DefaultMargin      = 0.5
)

// Box is an axis-aligned bounding box identified by a caller-supplied label.
type Box struct {
	Label   string  `json:"label"`
	CenterX float64 `json:"x"`
	CenterY float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Frame is the visible area, centered on the origin.
type Frame struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Overlap names two boxes that intersect.
type Overlap struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Violation names a box crossing the safe area of the frame.
type Violation struct {
	Label string   `json:"label"`
	Edges []string `json:"edges"`
}

// Report is the outcome of a layout check.
type Report struct {
	Overlaps   []Overlap   `json:"overlaps"`
	OutOfFrame []Violation `json:"out_of_frame"`
}

// Clean reports whether the layout has no problems.
func (r Report) Clean() bool {
	return len(r.Overlaps) == 0 && len(r.OutOfFrame) == 0
}

// Scene is the input document of the layout diagnostic.
type Scene struct {
	Frame  Frame    `json:"frame"`
	Margin *float64 `json:"margin,omitempty"`
	Boxes  []Box    `json:"boxes"`
}

// Intersects reports whether a and b overlap. Touching edges do not count.
func Intersects(a, b Box) bool {
	dx := math.Abs(a.CenterX - b.CenterX)
	dy := math.Abs(a.CenterY - b.CenterY)
	return dx < (a.Width+b.Width)/2 && dy < (a.Height+b.Height)/2
}

// Overlaps returns every intersecting pair in input order.
func Overlaps(boxes []Box) []Overlap {
	var out []Overlap
	for i := 0; i < len(boxes); i++ {
		for j := i + 1; j < len(boxes); j++ {
			if Intersects(boxes[i], boxes[j]) {
				out = append(out, Overlap{A: boxes[i].Label, B: boxes[j].Label})
			}
		}
	}
	return out
}

// OutOfBounds returns boxes extending past the frame shrunk by margin on each side.
func OutOfBounds(boxes []Box, frame Frame, margin float64) []Violation {
	halfW := frame.Width/2 - margin
	halfH := frame.Height/2 - margin
	var out []Violation
	for _, b := range boxes {
		var edges []string
		if b.CenterX-b.Width/2 < -halfW {
			edges = append(edges, "left")
		}
		if b.CenterX+b.Width/2 > halfW {
			edges = append(edges, "right")
		}
		if b.CenterY+b.Height/2 > halfH {
			edges = append(edges, "top")
		}
		if b.CenterY-b.Height/2 < -halfH {
			edges = append(edges, "bottom")
		}
		if len(edges) > 0 {
			out = append(out, Violation{Label: b.Label, Edges: edges})
		}
	}
	return out
}

// Check runs both checks over the scene, filling frame defaults.
func Check(s Scene) (Report, error) {
	if err := validateBoxes(s.Boxes); err != nil {
		return Report{}, err
	}
	frame := s.Frame
	if frame.Width <= 0 {
		frame.Width = DefaultFrameWidth
	}
	if frame.Height <= 0 {
		frame.Height = DefaultFrameHeight
	}
	margin := DefaultMargin
	if s.Margin != nil {
		margin = *s.Margin
	}
	return Report{
		Overlaps:   Overlaps(s.Boxes),
		OutOfFrame: OutOfBounds(s.Boxes, frame, margin),
	}, nil
}

// Decode reads a Scene document.
func Decode(r io.Reader) (Scene, error) {
	var s Scene
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Scene{}, fmt.Errorf("decode layout: %w", err)
	}
	return s, nil
}

func validateBoxes(boxes []Box) error {
	seen := make(map[string]struct{}, len(boxes))
	for i, b := range boxes {
		label := strings.TrimSpace(b.Label)
		if label == "" {
			return fmt.Errorf("box %d: label is required", i)
		}
		if _, ok := seen[label]; ok {
			return fmt.Errorf("box %q: duplicate label", label)
		}
		seen[label] = struct{}{}
		if b.Width < 0 || b.Height < 0 {
			return fmt.Errorf("box %q: %w", label, errNegativeSize)
		}
	}
	return nil
}

var errNegativeSize = errors.New("width and height must not be negative")
