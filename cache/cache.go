// Package cache persists the last known state of every tracked geofence so
// change detection survives restarts.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/NPRA/geofence-converter/geom"
)

// VersionLayout is how versions are persisted. Values in this layout sort
// chronologically as plain strings.
const VersionLayout = "2006-01-02 15:04:05"

// Fence is a cached geofence row.
type Fence struct {
	ID      int64
	Name    string
	Version time.Time

	// Polygon is the raw geometry string as received from the registry.
	Polygon string

	// Centroid is the projected centroid, nil when it was never computed.
	Centroid *geom.Point
}

// Store is the cache boundary. Find returns a nil Fence without error when
// the id is unknown.
type Store interface {
	Find(ctx context.Context, id int64) (*Fence, error)
	Insert(ctx context.Context, f *Fence) error
	Update(ctx context.Context, f *Fence) error
	Delete(ctx context.Context, id int64) error
	All(ctx context.Context) ([]*Fence, error)
	Close() error
}

var ErrNotFound = errors.New("fence not found")

// Ring parses the stored polygon.
func (f *Fence) Ring() ([]geom.Point, error) {
	return geom.ParsePolygon(f.Polygon)
}

func formatVersion(t time.Time) string {
	return t.UTC().Format(VersionLayout)
}

func parseVersion(s string) (time.Time, error) {
	t, err := time.ParseInLocation(VersionLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid cached version %q", s)
	}
	return t, nil
}

func formatCentroid(p *geom.Point) string {
	if p == nil {
		return ""
	}
	return geom.FormatPoint(*p)
}

func parseCentroid(s string) (*geom.Point, error) {
	if s == "" {
		return nil, nil
	}
	p, err := geom.ParsePoint(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
