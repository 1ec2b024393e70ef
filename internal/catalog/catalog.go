// Package catalog holds the immutable per-session set of capture poses and
// answers neighbor queries against it.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/scanwalk/engine/pkg/core"
)

// ErrDuplicateID is returned at build time when two poses share an id.
var ErrDuplicateID = errors.New("duplicate viewpoint id")

// ErrUnknownViewpoint is returned when a lookup references an id that is
// not in the tour.
var ErrUnknownViewpoint = errors.New("unknown viewpoint id")

// Tour is the ordered-by-arrival set of capture poses plus the shared model
// asset reference. It is a value built once per load and treated as
// read-only for the rest of the session; a reload rebuilds it wholesale.
type Tour struct {
	modelRef  string
	poses     []core.CameraPose
	byID      map[uint32]int
	footprint geom.Envelope
}

// Build validates poses and assembles a Tour. Duplicate ids are fatal;
// duplicate labels only warrant a warning because the image reference they
// derive may still be intentional.
func Build(logger *slog.Logger, modelRef string, poses []core.CameraPose) (*Tour, error) {
	t := &Tour{
		modelRef: modelRef,
		poses:    append([]core.CameraPose(nil), poses...),
		byID:     make(map[uint32]int, len(poses)),
	}

	labels := make(map[string]uint32, len(poses))
	for i, p := range t.poses {
		if prev, ok := t.byID[p.ID]; ok {
			return nil, fmt.Errorf("%w: %d (labels %q and %q)",
				ErrDuplicateID, p.ID, t.poses[prev].Label, p.Label)
		}
		t.byID[p.ID] = i

		if otherID, ok := labels[p.Label]; ok {
			logger.Warn("duplicate viewpoint label",
				"label", p.Label, "id", p.ID, "otherId", otherID)
		}
		labels[p.Label] = p.ID
	}

	xys := make([]geom.XY, len(t.poses))
	for i, p := range t.poses {
		xys[i] = geom.XY{X: p.Position.X, Y: p.Position.Z}
	}
	env, err := geom.NewEnvelope(xys)
	if err != nil {
		return nil, fmt.Errorf("tour footprint: %w", err)
	}
	t.footprint = env

	return t, nil
}

// ModelRef returns the shared 3D model asset reference.
func (t *Tour) ModelRef() string {
	return t.modelRef
}

// Len returns the number of viewpoints.
func (t *Tour) Len() int {
	return len(t.poses)
}

// Poses returns a copy of all poses in arrival order.
func (t *Tour) Poses() []core.CameraPose {
	return append([]core.CameraPose(nil), t.poses...)
}

// Pose returns the pose for id.
func (t *Tour) Pose(id uint32) (core.CameraPose, error) {
	i, ok := t.byID[id]
	if !ok {
		return core.CameraPose{}, fmt.Errorf("%w: %d", ErrUnknownViewpoint, id)
	}
	return t.poses[i], nil
}

// NeighborsOf returns up to k poses nearest to id by render-space Euclidean
// distance, ascending, ties broken by ascending id. The query pose itself is
// excluded. Ordering is deterministic for equal inputs.
func (t *Tour) NeighborsOf(id uint32, k int) ([]core.CameraPose, error) {
	origin, err := t.Pose(id)
	if err != nil {
		return nil, err
	}

	neighbors := make([]core.CameraPose, 0, len(t.poses)-1)
	for _, p := range t.poses {
		if p.ID == id {
			continue
		}
		neighbors = append(neighbors, p)
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		di := origin.Position.Dist(neighbors[i].Position)
		dj := origin.Position.Dist(neighbors[j].Position)
		if di != dj {
			return di < dj
		}
		return neighbors[i].ID < neighbors[j].ID
	})

	if k >= 0 && k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Footprint returns the ground-plane (X/Z) extent of all capture positions,
// used by the overhead view to frame the model.
func (t *Tour) Footprint() geom.Envelope {
	return t.footprint
}
