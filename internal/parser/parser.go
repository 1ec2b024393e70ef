// Package parser turns raw pose-source records into camera poses.
// It is pure string -> model conversion with only a logger dependency;
// the file tokenizing that produces records lives with the caller.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/scanwalk/engine/internal/pose"
	"github.com/scanwalk/engine/pkg/core"
)

// ErrBadLabel is returned when a record's label does not match the
// <group>_frame_<cameraId> convention.
var ErrBadLabel = errors.New("label does not match <group>_frame_<cameraId>")

// ErrBadTransform is returned when a record's transform string is not
// sixteen finite numbers.
var ErrBadTransform = errors.New("transform is not a 16-number matrix")

// labelPattern captures the group and the authoritative camera id.
var labelPattern = regexp.MustCompile(`^(\d+)_frame_(\d+)$`)

// Record is one parsed pose-source camera record, not yet converted to
// render space.
type Record struct {
	ID        uint32
	Group     uint32
	Label     string
	Transform core.Transform4
}

// Parser converts pose-source records into camera poses.
type Parser struct {
	logger    *slog.Logger
	framesDir string
	imageExt  string
}

// New creates a parser. framesDir and imageExt drive the panorama image
// reference derived from each record's label.
func New(logger *slog.Logger, framesDir, imageExt string) *Parser {
	return &Parser{
		logger:    logger,
		framesDir: framesDir,
		imageExt:  strings.TrimPrefix(imageExt, "."),
	}
}

// ParseRecord parses a single record. The camera id embedded in the label
// is the logical identity; rawID is the source listing's own id attribute
// and is only reported in logs when the two disagree.
func (p *Parser) ParseRecord(rawID, label, matrixText string) (Record, error) {
	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return Record{}, fmt.Errorf("%w: %q", ErrBadLabel, label)
	}

	group, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("%w: group in %q: %v", ErrBadLabel, label, err)
	}
	cameraID, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("%w: camera id in %q: %v", ErrBadLabel, label, err)
	}

	if rawID != "" && rawID != m[2] {
		p.logger.Debug("record id attribute differs from label camera id, label wins",
			"rawId", rawID, "label", label)
	}

	fields := strings.Fields(matrixText)
	if len(fields) != 16 {
		return Record{}, fmt.Errorf("%w: got %d numbers in %q", ErrBadTransform, len(fields), label)
	}

	var t core.Transform4
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: entry %d of %q: %v", ErrBadTransform, i, label, err)
		}
		t[i] = v
	}

	return Record{
		ID:        uint32(cameraID),
		Group:     uint32(group),
		Label:     label,
		Transform: t,
	}, nil
}

// ImageRef derives the panorama image reference for a label:
// <framesDir>/<label>.<ext>.
func (p *Parser) ImageRef(label string) string {
	return path.Join(p.framesDir, label+"."+p.imageExt)
}

// RawRecord is an unparsed (id, label, transform) triple as read from the
// pose source.
type RawRecord struct {
	ID        string
	Label     string
	Transform string
}

// ParseAll parses and converts a batch of records. Records with bad labels,
// malformed transforms or invalid poses are dropped and logged; the rest of
// the batch is unaffected. Order of arrival is preserved.
func (p *Parser) ParseAll(raw []RawRecord) []core.CameraPose {
	poses := make([]core.CameraPose, 0, len(raw))

	for _, r := range raw {
		rec, err := p.ParseRecord(r.ID, r.Label, r.Transform)
		if err != nil {
			p.logger.Warn("dropping camera record", "label", r.Label, "error", err)
			continue
		}

		conv := pose.Convert(rec.Transform)
		if !conv.Valid {
			p.logger.Warn("dropping camera with invalid pose",
				"id", rec.ID, "label", rec.Label)
			continue
		}

		poses = append(poses, core.CameraPose{
			ID:              rec.ID,
			Label:           rec.Label,
			Position:        conv.Position,
			Orientation:     conv.Orientation,
			SourceTransform: rec.Transform,
			ImageRef:        p.ImageRef(rec.Label),
		})
	}

	return poses
}
