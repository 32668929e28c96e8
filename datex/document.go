package datex

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"time"

	// Europe/Oslo must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/pkg/errors"
)

const (
	namespace    = "http://datex2.eu/schema/2/2_0"
	namespaceXSI = "http://www.w3.org/2001/XMLSchema-instance"

	// PublicationType is the xsi:type of the root element.
	PublicationType = "PredefinedLocationsPublication"

	// Publisher is the national identifier of the publication creator.
	Publisher = "Norwegian Public Roads Administration"

	// Country of the publication creator.
	Country = "no"

	// ContentType of rendered documents.
	ContentType = "application/xml"
)

var publicationLocation = mustLoadLocation("Europe/Oslo")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Document is a rendered payload.
type Document struct {
	Payload     *Payload
	PublishedAt time.Time
	Body        []byte
}

// Epoch is the value of the container version attribute.
func (p *Payload) Epoch() int64 {
	return p.Version.Unix()
}

type publication struct {
	XMLName         xml.Name            `xml:"payloadPublication"`
	Namespace       string              `xml:"xmlns,attr"`
	NamespaceXSI    string              `xml:"xmlns:xsi,attr"`
	Type            string              `xml:"xsi:type,attr"`
	Lang            string              `xml:"lang,attr"`
	PublicationTime string              `xml:"publicationTime"`
	Creator         publicationCreator  `xml:"publicationCreator"`
	Header          headerInformation   `xml:"headerInformation"`
	Containers      []locationContainer `xml:"predefinedLocationContainer"`
}

type publicationCreator struct {
	Country            string `xml:"country"`
	NationalIdentifier string `xml:"nationalIdentifier"`
}

type headerInformation struct {
	Confidentiality   string `xml:"confidentiality"`
	InformationStatus string `xml:"informationStatus"`
}

type locationContainer struct {
	ID       string   `xml:"id,attr"`
	Version  string   `xml:"version,attr"`
	Type     string   `xml:"xsi:type,attr"`
	Name     []string `xml:"predefinedLocationName>values>value"`
	Location location `xml:"location"`
}

type location struct {
	Type      string    `xml:"xsi:type,attr"`
	Reference reference `xml:"areaExtension>openlrExtendedArea>openlrAreaLocationReference"`
}

type reference struct {
	Type    string       `xml:"xsi:type,attr"`
	Corners []coordinate `xml:"openlrPolygonCorners>openlrCoordinate"`
}

type coordinate struct {
	Latitude  string `xml:"latitude"`
	Longitude string `xml:"longitude"`
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NewDocument renders the payload. now is the publication time.
func NewDocument(p *Payload, now time.Time) (*Document, error) {
	if p == nil {
		return nil, errors.New("payload is nil")
	}
	if len(p.Polygon) < 3 {
		return nil, errors.Errorf("payload %d: polygon has %d corners", p.ID, len(p.Polygon))
	}

	corners := make([]coordinate, 0, len(p.Polygon))
	for _, ll := range p.Polygon {
		corners = append(corners, coordinate{
			Latitude:  formatDegrees(ll.Lat),
			Longitude: formatDegrees(ll.Lon),
		})
	}

	doc := publication{
		Namespace:       namespace,
		NamespaceXSI:    namespaceXSI,
		Type:            PublicationType,
		Lang:            "en",
		PublicationTime: now.In(publicationLocation).Format(time.RFC3339),
		Creator: publicationCreator{
			Country:            Country,
			NationalIdentifier: Publisher,
		},
		Header: headerInformation{
			Confidentiality:   "noRestriction",
			InformationStatus: "real",
		},
		Containers: []locationContainer{
			{
				ID:      strconv.FormatInt(p.ID, 10),
				Version: strconv.FormatInt(p.Epoch(), 10),
				Type:    "PredefinedLocation",
				Name:    []string{p.Name},
				Location: location{
					Type: "Area",
					Reference: reference{
						Type:    "OpenlrPolygonLocationReference",
						Corners: corners,
					},
				},
			},
		},
	}

	buf := &bytes.Buffer{}
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrapf(err, "payload %d: error encoding document", p.ID)
	}

	return &Document{
		Payload:     p,
		PublishedAt: now,
		Body:        buf.Bytes(),
	}, nil
}
