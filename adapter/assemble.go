package adapter

import (
	"time"

	"github.com/pkg/errors"

	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/datex"
	"github.com/NPRA/geofence-converter/geom"
	"github.com/NPRA/geofence-converter/registry"
)

// Assembler turns fences into geodetic exchange payloads.
type Assembler struct {
	Projection geom.Projection
}

var defaultAssembler = Assembler{Projection: geom.DefaultProjection}

// Assemble uses the default projection, see Assembler.Assemble.
func Assemble(fence *registry.Fence, kind datex.Kind) (*datex.Payload, geom.Point, error) {
	return defaultAssembler.Assemble(fence, kind)
}

// AssembleDeleted uses the default projection, see Assembler.AssembleDeleted.
func AssembleDeleted(row *cache.Fence) (*datex.Payload, error) {
	return defaultAssembler.AssembleDeleted(row)
}

// Assemble builds a create or update payload. The projected centroid is
// returned so it can be cached.
func (a Assembler) Assemble(fence *registry.Fence, kind datex.Kind) (*datex.Payload, geom.Point, error) {
	centroid, err := geom.Centroid(fence.Polygon)
	if err != nil {
		return nil, geom.Point{}, errors.Wrapf(err, "geofence %d", fence.ID)
	}
	p, err := a.payload(fence.ID, fence.Name, fence.Version, fence.Polygon, centroid, kind)
	if err != nil {
		return nil, geom.Point{}, err
	}
	return p, centroid, nil
}

// AssembleDeleted builds a delete payload from the cached row. The centroid
// is recomputed when the row never had one.
func (a Assembler) AssembleDeleted(row *cache.Fence) (*datex.Payload, error) {
	ring, err := row.Ring()
	if err != nil {
		return nil, errors.Wrapf(err, "geofence %d", row.ID)
	}
	var centroid geom.Point
	if row.Centroid != nil {
		centroid = *row.Centroid
	} else if centroid, err = geom.Centroid(ring); err != nil {
		return nil, errors.Wrapf(err, "geofence %d", row.ID)
	}
	return a.payload(row.ID, row.Name, row.Version, ring, centroid, datex.KindDelete)
}

func (a Assembler) payload(id int64, name string, version time.Time, ring []geom.Point, centroid geom.Point, kind datex.Kind) (*datex.Payload, error) {
	polygon, err := a.Projection.RingToGeodetic(ring)
	if err != nil {
		return nil, errors.Wrapf(err, "geofence %d", id)
	}
	ll, err := a.Projection.ToGeodetic(centroid)
	if err != nil {
		return nil, errors.Wrapf(err, "geofence %d: centroid", id)
	}
	return &datex.Payload{
		ID:       id,
		Name:     name,
		Version:  version,
		Polygon:  polygon,
		Centroid: ll,
		Kind:     kind,
	}, nil
}
