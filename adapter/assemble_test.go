package adapter

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/datex"
	"github.com/NPRA/geofence-converter/geom"
	"github.com/NPRA/geofence-converter/registry"
)

const osloPolygon = "POLYGON ((262900 6649200, 263000 6649200, 263000 6649300, 262900 6649300))"

func osloFence(t *testing.T) *registry.Fence {
	t.Helper()
	ring, err := geom.ParsePolygon(osloPolygon)
	require.NoError(t, err)
	return &registry.Fence{
		ID:      42,
		Name:    "Oslo",
		Version: time.Date(2021, time.May, 1, 10, 0, 0, 0, time.UTC),
		Polygon: ring,
		Raw:     osloPolygon,
	}
}

func TestAssemble(t *testing.T) {
	fence := osloFence(t)

	p, centroid, err := Assemble(fence, datex.KindCreate)

	require.NoError(t, err)
	assert.InDelta(t, 262950, centroid.X, 1e-6)
	assert.InDelta(t, 6649250, centroid.Y, 1e-6)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "Oslo", p.Name)
	assert.Equal(t, fence.Version, p.Version)
	assert.Equal(t, datex.KindCreate, p.Kind)
	require.Len(t, p.Polygon, 4)
	for _, ll := range append(p.Polygon, p.Centroid) {
		assert.InDelta(t, 59.9, ll.Lat, 0.1)
		assert.InDelta(t, 10.75, ll.Lon, 0.1)
	}
	assert.Less(t, p.Polygon[0].Lon, p.Polygon[1].Lon, "easting grows eastwards")
	assert.Less(t, p.Polygon[1].Lat, p.Polygon[2].Lat, "northing grows northwards")
}

func TestAssemble_WestOfZone(t *testing.T) {
	// Bergen lies west of zone 33, its eastings are negative.
	ring, err := geom.ParsePolygon("POLYGON ((-32100 6734300, -31900 6734300, -31900 6734500, -32100 6734500))")
	require.NoError(t, err)
	fence := &registry.Fence{ID: 7, Name: "Bergen", Polygon: ring}

	p, _, err := Assemble(fence, datex.KindCreate)

	require.NoError(t, err)
	for _, ll := range append(p.Polygon, p.Centroid) {
		assert.InDelta(t, 60.39, ll.Lat, 0.01)
		assert.InDelta(t, 5.32, ll.Lon, 0.01)
	}
}

func TestAssemble_Degenerate(t *testing.T) {
	fence := osloFence(t)
	fence.Polygon = []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}

	_, _, err := Assemble(fence, datex.KindUpdate)

	var geometryErr *geom.GeometryError
	assert.True(t, errors.As(err, &geometryErr))
}

func TestAssembleDeleted(t *testing.T) {
	row := &cache.Fence{
		ID:       42,
		Name:     "Oslo",
		Version:  time.Date(2021, time.May, 1, 10, 0, 0, 0, time.UTC),
		Polygon:  osloPolygon,
		Centroid: &geom.Point{X: 262950, Y: 6649250},
	}

	p, err := AssembleDeleted(row)
	require.NoError(t, err)
	assert.Equal(t, datex.KindDelete, p.Kind)
	assert.Len(t, p.Polygon, 4)

	// Rows cached without a centroid get one computed.
	row.Centroid = nil
	recomputed, err := AssembleDeleted(row)
	require.NoError(t, err)
	assert.InDelta(t, p.Centroid.Lat, recomputed.Centroid.Lat, 1e-9)
	assert.InDelta(t, p.Centroid.Lon, recomputed.Centroid.Lon, 1e-9)

	row.Polygon = "POINT (1 2)"
	_, err = AssembleDeleted(row)
	var parseErr *geom.ParseError
	assert.True(t, errors.As(err, &parseErr))
}
