package registry

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/NPRA/geofence-converter/geom"
)

// TimestampLayout is the layout of metadata.sist_modifisert. The registry
// does not send a timezone; values are read as UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// DataTypeGeomFlate is the datatype code of polygon area properties.
const DataTypeGeomFlate = 19

// Object is a road object (vegobjekt) as returned by the registry.
type Object struct {
	ID         int64          `json:"id"`
	Href       string         `json:"href"`
	Metadata   ObjectMetadata `json:"metadata"`
	Properties []Property     `json:"egenskaper"`
}

type ObjectMetadata struct {
	Type         ObjectType `json:"type"`
	Version      int        `json:"versjon"`
	LastModified string     `json:"sist_modifisert"`
}

type ObjectType struct {
	ID   int    `json:"id"`
	Name string `json:"navn"`
}

// Property (egenskap) of a road object. The value is a string for most
// datatypes but the registry sends numbers unquoted.
type Property struct {
	ID       int         `json:"id"`
	Name     string      `json:"navn"`
	DataType interface{} `json:"datatype"`
	Value    interface{} `json:"verdi"`
}

// Fence is a road object that passed validation.
type Fence struct {
	ID      int64
	Name    string
	Version time.Time
	Polygon []geom.Point

	// Raw is the geometry string exactly as received.
	Raw  string
	Href string
}

// ValidationError reports an object that cannot be turned into a Fence.
type ValidationError struct {
	ID     int64
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// ParseTimestamp reads a registry timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

// FormatTimestamp is the inverse of ParseTimestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// geometry returns the value of the first GeomFlate property.
func (o *Object) geometry() (string, bool) {
	for _, p := range o.Properties {
		dt, err := cast.ToIntE(p.DataType)
		if err != nil || dt != DataTypeGeomFlate {
			continue
		}
		v, err := cast.ToStringE(p.Value)
		if err != nil {
			return "", true
		}
		return v, true
	}
	return "", false
}

// Normalize validates a registry object and extracts the fields we track.
func Normalize(obj *Object) (*Fence, error) {
	if obj == nil {
		return nil, &ValidationError{Reason: "object is nil"}
	}
	if obj.ID <= 0 {
		return nil, &ValidationError{ID: obj.ID, Reason: "missing id"}
	}
	if obj.Metadata.Type.Name == "" {
		return nil, &ValidationError{ID: obj.ID, Reason: "missing name"}
	}
	if obj.Metadata.LastModified == "" {
		return nil, &ValidationError{ID: obj.ID, Reason: "missing modification timestamp"}
	}
	version, err := ParseTimestamp(obj.Metadata.LastModified)
	if err != nil {
		return nil, &ValidationError{ID: obj.ID, Reason: "malformed modification timestamp " + obj.Metadata.LastModified}
	}

	raw, ok := obj.geometry()
	if !ok {
		return nil, &ValidationError{ID: obj.ID, Reason: "missing geometry"}
	}
	if !strings.Contains(raw, "POLYGON") {
		return nil, &ValidationError{ID: obj.ID, Reason: "malformed geometry"}
	}

	ring, err := geom.ParsePolygon(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "object %d", obj.ID)
	}

	return &Fence{
		ID:      obj.ID,
		Name:    obj.Metadata.Type.Name,
		Version: version,
		Polygon: ring,
		Raw:     raw,
		Href:    obj.Href,
	}, nil
}
