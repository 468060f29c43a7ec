package layout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntersects(t *testing.T) {
	a := Box{Label: "title", CenterX: 0, CenterY: 0, Width: 2, Height: 2}
	require.True(t, Intersects(a, Box{Label: "b", CenterX: 1.5, CenterY: 0.5, Width: 2, Height: 2}))
	require.False(t, Intersects(a, Box{Label: "c", CenterX: 2, CenterY: 0, Width: 2, Height: 2}), "touching edges")
	require.False(t, Intersects(a, Box{Label: "d", CenterX: 0, CenterY: 5, Width: 2, Height: 2}))
}

func TestOverlapsReportsLabeledPairs(t *testing.T) {
	boxes := []Box{
		{Label: "axes", Width: 6, Height: 4},
		{Label: "curve", CenterX: 1, CenterY: 1, Width: 2, Height: 1},
		{Label: "caption", CenterY: -3.5, Width: 4, Height: 0.5},
	}
	require.Equal(t, []Overlap{{A: "axes", B: "curve"}}, Overlaps(boxes))
}

func TestOutOfBoundsHonorsMargin(t *testing.T) {
	frame := Frame{Width: 14, Height: 8}
	boxes := []Box{
		{Label: "inside", Width: 2, Height: 2},
		{Label: "edge", CenterX: 6, Width: 2, Height: 1},
		{Label: "corner", CenterX: -6.8, CenterY: 3.8, Width: 1, Height: 1},
	}
	got := OutOfBounds(boxes, frame, 0.5)
	require.Equal(t, []Violation{
		{Label: "edge", Edges: []string{"right"}},
		{Label: "corner", Edges: []string{"left", "top"}},
	}, got)

	require.Len(t, OutOfBounds(boxes, frame, 0), 1)
}

func TestCheckDecodedScene(t *testing.T) {
	doc := `{"margin": 0, "boxes": [
		{"label": "a", "x": 0, "y": 0, "width": 2, "height": 2},
		{"label": "b", "x": 0.5, "y": 0, "width": 2, "height": 2}
	]}`
	scene, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)

	report, err := Check(scene)
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Len(t, report.Overlaps, 1)
	require.Empty(t, report.OutOfFrame)
}

func TestCheckRejectsBadBoxes(t *testing.T) {
	_, err := Check(Scene{Boxes: []Box{{Label: ""}}})
	require.Error(t, err)

	_, err = Check(Scene{Boxes: []Box{{Label: "a"}, {Label: "a"}}})
	require.ErrorContains(t, err, "duplicate")

	_, err = Check(Scene{Boxes: []Box{{Label: "a", Width: -1}}})
	require.ErrorIs(t, err, errNegativeSize)

	_, err = Decode(strings.NewReader(`{"boxes": [], "extra": 1}`))
	require.Error(t, err)
}
