// Package geom parses registry polygons, computes their centroid and converts
// projected UTM coordinates into geodetic latitude/longitude pairs.
package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultZone is the UTM zone used by the registry (EUREF89 UTM33).
	DefaultZone = 33

	// DefaultZoneLetter selects the northern hemisphere.
	DefaultZoneLetter = "N"
)

const (
	polygonPrefix = "POLYGON (("
	polygonSuffix = "))"
)

// Point is a coordinate pair in the projected (UTM) plane.
type Point struct {
	X float64
	Y float64
}

// LatLon is a geodetic coordinate in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// ParseError is returned when a polygon string cannot be turned into a ring.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// GeometryError is returned when a ring cannot be used for computation.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return "geometry error: " + e.Reason
}

// ParsePolygon extracts the ring of a "POLYGON ((x1 y1, x2 y2, ...))" string.
// The ring is returned as given, closed or not.
func ParsePolygon(raw string) ([]Point, error) {
	start := strings.Index(raw, polygonPrefix)
	end := strings.LastIndex(raw, polygonSuffix)
	if start < 0 || end < 0 || end < start+len(polygonPrefix) {
		return nil, &ParseError{Reason: "missing POLYGON (( )) markers"}
	}
	body := raw[start+len(polygonPrefix) : end]

	pairs := strings.Split(body, ",")
	ring := make([]Point, 0, len(pairs))
	for i, pair := range pairs {
		tokens := strings.Fields(pair)
		if len(tokens) != 2 {
			return nil, &ParseError{Reason: fmt.Sprintf("point %d: expected 2 coordinates, found %d", i, len(tokens))}
		}
		x, err := strconv.ParseFloat(tokens[0], 64)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("point %d: invalid x %q", i, tokens[0])}
		}
		y, err := strconv.ParseFloat(tokens[1], 64)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("point %d: invalid y %q", i, tokens[1])}
		}
		ring = append(ring, Point{X: x, Y: y})
	}

	if len(ring) < 3 {
		return nil, &ParseError{Reason: "degenerate polygon"}
	}

	return ring, nil
}

// Centroid returns the area-weighted centroid of the ring. The last vertex is
// always joined back to the first one, so closed and open rings give the same
// result.
func Centroid(ring []Point) (Point, error) {
	if len(ring) < 3 {
		return Point{}, &GeometryError{Reason: "degenerate polygon: fewer than 3 points"}
	}

	// Projected coordinates are large, work relative to the first vertex.
	origin := ring[0]

	var signedArea, cx, cy float64
	for i := range ring {
		x0, y0 := ring[i].X-origin.X, ring[i].Y-origin.Y
		next := ring[(i+1)%len(ring)]
		x1, y1 := next.X-origin.X, next.Y-origin.Y
		a := x0*y1 - x1*y0
		signedArea += a
		cx += (x0 + x1) * a
		cy += (y0 + y1) * a
	}
	signedArea *= 0.5

	if signedArea == 0 || math.IsNaN(signedArea) || math.IsInf(signedArea, 0) {
		return Point{}, &GeometryError{Reason: "degenerate polygon: zero signed area"}
	}

	return Point{
		X: origin.X + cx/(6*signedArea),
		Y: origin.Y + cy/(6*signedArea),
	}, nil
}

// WGS84 ellipsoid and UTM scale.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1 / 298.257223563
	scaleFactor   = 0.9996
	falseEasting  = 500000.0
	falseNorthing = 10000000.0

	// maxEastingOffset bounds the distance from the central meridian. The
	// registry projects the whole country in one zone, so eastings well
	// outside the nominal 100-900 km band are expected.
	maxEastingOffset = 2500000.0
)

const latitudeBands = "CDEFGHJKLMNPQRSTUVWX"

// Krüger series to sixth order in the third flattening.
var (
	thirdFlattening = flattening / (2 - flattening)
	eccentricity    = math.Sqrt(flattening * (2 - flattening))
)

var rectifyingRadius, inverseCoefficients = kruger(thirdFlattening)

func kruger(n float64) (float64, [6]float64) {
	n2 := n * n
	n3 := n2 * n
	n4 := n3 * n
	n5 := n4 * n
	n6 := n5 * n
	radius := semiMajorAxis / (1 + n) * (1 + n2/4 + n4/64 + n6/256)
	return radius, [6]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360 - 81*n5/512 + 96199*n6/604800,
		n2/48 + n3/15 - 437*n4/1440 + 46*n5/105 - 1118711*n6/3870720,
		17*n3/480 - 37*n4/840 - 209*n5/4480 + 5569*n6/90720,
		4397*n4/161280 - 11*n5/504 - 830251*n6/7257600,
		4583*n5/161280 - 108847*n6/3991680,
		20648693 * n6 / 638668800,
	}
}

// UTMToGeodetic converts a projected point into latitude and longitude. The
// easting is not limited to the nominal width of the zone.
func UTMToGeodetic(p Point, zone int, letter string) (LatLon, error) {
	if zone < 1 || zone > 60 {
		return LatLon{}, &GeometryError{Reason: fmt.Sprintf("utm zone %d out of range", zone)}
	}
	band := strings.ToUpper(letter)
	if len(band) != 1 || !strings.Contains(latitudeBands, band) {
		return LatLon{}, &GeometryError{Reason: fmt.Sprintf("utm latitude band %q is invalid", letter)}
	}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return LatLon{}, &GeometryError{Reason: "utm coordinate is not finite"}
	}
	if math.Abs(p.X-falseEasting) > maxEastingOffset || p.Y < 0 || p.Y > falseNorthing {
		return LatLon{}, &GeometryError{Reason: fmt.Sprintf("utm coordinate (%v, %v) out of range", p.X, p.Y)}
	}

	northing := p.Y
	if band < "N" {
		northing -= falseNorthing
	}

	xi := northing / (scaleFactor * rectifyingRadius)
	eta := (p.X - falseEasting) / (scaleFactor * rectifyingRadius)

	xiPrime, etaPrime := xi, eta
	for j, beta := range inverseCoefficients {
		k := 2 * float64(j+1)
		xiPrime -= beta * math.Sin(k*xi) * math.Cosh(k*eta)
		etaPrime -= beta * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	sinhEta := math.Sinh(etaPrime)
	cosXi := math.Cos(xiPrime)
	tauPrime := math.Sin(xiPrime) / math.Hypot(sinhEta, cosXi)
	lon := math.Atan2(sinhEta, cosXi)

	centralMeridian := float64(zone*6 - 183)
	return LatLon{
		Lat: math.Atan(conformalToGeodetic(tauPrime)) * 180 / math.Pi,
		Lon: centralMeridian + lon*180/math.Pi,
	}, nil
}

// conformalToGeodetic solves tan(conformal latitude) for tan(latitude) with
// Newton's method.
func conformalToGeodetic(tauPrime float64) float64 {
	e2m := 1 - eccentricity*eccentricity
	tau := tauPrime / e2m
	for i := 0; i < 10; i++ {
		tauOne := math.Hypot(1, tau)
		sigma := math.Sinh(eccentricity * math.Atanh(eccentricity*tau/tauOne))
		tauI := tau*math.Hypot(1, sigma) - sigma*tauOne
		delta := (tauPrime - tauI) / math.Hypot(1, tauI) * (1 + e2m*tau*tau) / (e2m * tauOne)
		tau += delta
		if math.Abs(delta) < 1e-14*math.Max(1, math.Abs(tau)) {
			break
		}
	}
	return tau
}

// Projection converts points using a fixed UTM zone.
type Projection struct {
	Zone   int
	Letter string
}

// DefaultProjection is the projection used by the registry.
var DefaultProjection = Projection{Zone: DefaultZone, Letter: DefaultZoneLetter}

// ToGeodetic converts a single point.
func (pr Projection) ToGeodetic(p Point) (LatLon, error) {
	return UTMToGeodetic(p, pr.Zone, pr.Letter)
}

// RingToGeodetic converts every vertex of the ring, preserving order.
func (pr Projection) RingToGeodetic(ring []Point) ([]LatLon, error) {
	out := make([]LatLon, 0, len(ring))
	for _, p := range ring {
		ll, err := pr.ToGeodetic(p)
		if err != nil {
			return nil, err
		}
		out = append(out, ll)
	}
	return out, nil
}

// FormatPoint encodes a point as "x,y".
func FormatPoint(p Point) string {
	return strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64)
}

// ParsePoint decodes the "x,y" form produced by FormatPoint.
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, &ParseError{Reason: fmt.Sprintf("point %q: expected \"x,y\"", s)}
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, &ParseError{Reason: fmt.Sprintf("point %q: invalid x", s)}
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, &ParseError{Reason: fmt.Sprintf("point %q: invalid y", s)}
	}
	return Point{X: x, Y: y}, nil
}
