package geom

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolygon(t *testing.T) {
	ring, err := ParsePolygon("POLYGON ((1 2, 3 4, 5 6))")

	require.NoError(t, err)
	assert.Equal(t, []Point{{1, 2}, {3, 4}, {5, 6}}, ring)
}

func TestParsePolygon_Registry(t *testing.T) {
	raw := "POLYGON ((262906.3971474045 6649248.441221254, 263059.8558061711 6649187.586932589, 263022.81406153727 6649124.086805921, 262906.3971474045 6649248.441221254))"

	ring, err := ParsePolygon(raw)

	require.NoError(t, err)
	require.Len(t, ring, 4)
	assert.Equal(t, Point{X: 262906.3971474045, Y: 6649248.441221254}, ring[0])
	assert.Equal(t, ring[0], ring[3])
}

func TestParsePolygon_Errors(t *testing.T) {
	tests := map[string]string{
		"Missing marker":    "LINESTRING (1 2, 3 4, 5 6)",
		"Missing closing":   "POLYGON ((1 2, 3 4, 5 6",
		"Three coordinates": "POLYGON ((1 2 0, 3 4 0, 5 6 0))",
		"Single coordinate": "POLYGON ((1 2, 3, 5 6))",
		"Not a number":      "POLYGON ((1 2, 3 four, 5 6))",
		"Two points":        "POLYGON ((1 2, 3 4))",
		"Empty":             "POLYGON (())",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			ring, err := ParsePolygon(raw)

			assert.Nil(t, ring)
			var perr *ParseError
			assert.True(t, errors.As(err, &perr), "unexpected error type %T", err)
		})
	}
}

func TestCentroid(t *testing.T) {
	tests := map[string]struct {
		ring []Point
		want Point
	}{
		"Square": {
			ring: []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}},
			want: Point{5, 5},
		},
		"Closed square": {
			ring: []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			want: Point{5, 5},
		},
		"Clockwise square": {
			ring: []Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}},
			want: Point{5, 5},
		},
		"Triangle": {
			ring: []Point{{0, 0}, {6, 0}, {0, 6}},
			want: Point{2, 2},
		},
		"Projected rectangle": {
			ring: []Point{{262900, 6649200}, {263000, 6649200}, {263000, 6649300}, {262900, 6649300}},
			want: Point{262950, 6649250},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := Centroid(tc.ring)

			require.NoError(t, err)
			assert.InDelta(t, tc.want.X, c.X, 1e-6)
			assert.InDelta(t, tc.want.Y, c.Y, 1e-6)
		})
	}
}

func TestCentroid_Degenerate(t *testing.T) {
	tests := map[string][]Point{
		"Collinear":    {{0, 0}, {1, 1}, {2, 2}},
		"Single point": {{3, 3}, {3, 3}, {3, 3}},
		"Too short":    {{0, 0}, {1, 0}},
	}
	for name, ring := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Centroid(ring)

			var gerr *GeometryError
			require.True(t, errors.As(err, &gerr))
		})
	}

	_, err := Centroid([]Point{{0, 0}, {1, 1}, {2, 2}})
	assert.EqualError(t, err, "geometry error: degenerate polygon: zero signed area")
}

func TestUTMToGeodetic_CentralMeridian(t *testing.T) {
	ll, err := UTMToGeodetic(Point{X: 500000, Y: 0}, DefaultZone, DefaultZoneLetter)

	require.NoError(t, err)
	assert.InDelta(t, 0, ll.Lat, 1e-9)
	assert.InDelta(t, 15, ll.Lon, 1e-9)
}

// Reference values from an independent forward transverse Mercator
// projection (WGS84, zone 33N).
func TestUTMToGeodetic(t *testing.T) {
	tests := map[string]struct {
		utm  Point
		want LatLon
	}{
		"oslo":          {Point{262563.0601, 6649440.0682}, LatLon{59.91387, 10.75225}},
		"bergen":        {Point{-31977.5369, 6734371.7983}, LatLon{60.39299, 5.32415}},
		"stavanger":     {Point{-31772.1379, 6573682.7702}, LatLon{58.96998, 5.73311}},
		"kristiansand":  {Point{88126.7094, 6466469.9749}, LatLon{58.14671, 7.99560}},
		"alesund":       {Point{44947.3337, 6958027.7055}, LatLon{62.47225, 6.15492}},
		"kirkenes":      {Point{1076709.2207, 7806975.5660}, LatLon{69.72706, 30.04560}},
		"gronland west": {Point{262906.3971474045, 6649248.441221254}, LatLon{59.912351468, 10.758591963}},
		"gronland east": {Point{263943.56601331057, 6648669.00256108}, LatLon{59.907757282, 10.777747242}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			have, err := UTMToGeodetic(tc.utm, DefaultZone, DefaultZoneLetter)

			require.NoError(t, err)
			assert.InDelta(t, tc.want.Lat, have.Lat, 1e-7)
			assert.InDelta(t, tc.want.Lon, have.Lon, 1e-7)
		})
	}
}

func TestUTMToGeodetic_Invalid(t *testing.T) {
	tests := map[string]struct {
		utm    Point
		zone   int
		letter string
	}{
		"zone":              {Point{500000, 6600000}, 0, "N"},
		"latitude band":     {Point{500000, 6600000}, 33, "I"},
		"negative northing": {Point{500000, -1}, 33, "N"},
		"far easting":       {Point{-2500000, 6600000}, 33, "N"},
		"not finite":        {Point{math.NaN(), 6600000}, 33, "N"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := UTMToGeodetic(tc.utm, tc.zone, tc.letter)

			var gerr *GeometryError
			assert.True(t, errors.As(err, &gerr), "unexpected error: %v", err)
		})
	}
}

func TestProjection_RingToGeodetic(t *testing.T) {
	ring := []Point{{500000, 0}, {500000, 0}, {500000, 0}}

	lls, err := DefaultProjection.RingToGeodetic(ring)

	require.NoError(t, err)
	require.Len(t, lls, 3)
	for _, ll := range lls {
		assert.InDelta(t, 15, ll.Lon, 1e-9)
	}
}

func TestFormatParsePoint(t *testing.T) {
	p := Point{X: 262950.25, Y: 6649250.5}

	s := FormatPoint(p)
	assert.Equal(t, "262950.25,6649250.5", s)

	have, err := ParsePoint(s)
	require.NoError(t, err)
	assert.Equal(t, p, have)

	_, err = ParsePoint("1;2")
	assert.Error(t, err)
	_, err = ParsePoint("a,2")
	assert.Error(t, err)
}
