package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/scanwalk/engine/pkg/core"
)

// TourPath builds the ground-plane (X/Z) line through the capture
// positions in arrival order, used by the overhead view to draw the
// capture walk.
func TourPath(poses []core.CameraPose) (geom.LineString, error) {
	if len(poses) < 2 {
		return geom.LineString{}, fmt.Errorf("path needs at least 2 viewpoints, got %d", len(poses))
	}

	flatCoords := make([]float64, 0, len(poses)*2)
	for _, p := range poses {
		flatCoords = append(flatCoords, p.Position.X, p.Position.Z)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("tour path: %w", err)
	}
	return ls, nil
}

// ParseGuidePath parses a JSON array of ground-plane coordinates into a
// geom.LineString. Authors draw these as suggested routes for the
// overhead view. Input format: "[[x1,z1],[x2,z2],...]"
func ParseGuidePath(input string) (geom.LineString, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return geom.LineString{}, fmt.Errorf("failed to parse guide path JSON: %w", err)
	}

	if len(coords) < 2 {
		return geom.LineString{}, fmt.Errorf("guide path must have at least 2 points, got %d", len(coords))
	}

	flatCoords := make([]float64, 0, len(coords)*2)
	for i, coord := range coords {
		if len(coord) < 2 {
			return geom.LineString{}, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		flatCoords = append(flatCoords, coord[0], coord[1])
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("guide path: %w", err)
	}
	return ls, nil
}
