// Package datex describes the exchange payload of a geofence and renders it
// as a DATEX II PredefinedLocationsPublication document.
package datex

import (
	"time"

	"github.com/NPRA/geofence-converter/geom"
)

// Kind tells consumers what happened to the geofence.
type Kind int

const (
	_ Kind = iota
	KindCreate
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Payload is the semantic content of one exchange message. Coordinates are
// geodetic.
type Payload struct {
	ID       int64
	Name     string
	Version  time.Time
	Polygon  []geom.LatLon
	Centroid geom.LatLon
	Kind     Kind
}
