package broker

import (
	"github.com/Azure/go-amqp"
	"github.com/google/uuid"

	"github.com/NPRA/geofence-converter/datex"
)

// Application property values expected by interchange consumers.
const (
	OriginatingCountry = "NO"
	ProtocolVersion    = "DATEX2;2.3"
	MessageType        = "DATEX2"
)

// NewMessage wraps a rendered document in an AMQP message. The geodetic
// centroid and the event kind travel as application properties so that
// consumers can route without parsing the body.
func NewMessage(doc *datex.Document) *amqp.Message {
	p := doc.Payload
	msg := amqp.NewMessage(doc.Body)

	contentType := datex.ContentType
	createdAt := doc.PublishedAt
	msg.Properties = &amqp.MessageProperties{
		MessageID:    uuid.New().String(),
		ContentType:  &contentType,
		CreationTime: &createdAt,
	}
	msg.ApplicationProperties = map[string]interface{}{
		"publisherName":      datex.Publisher,
		"originatingCountry": OriginatingCountry,
		"protocolVersion":    ProtocolVersion,
		"messageType":        MessageType,
		"publicationType":    datex.PublicationType,
		"latitude":           p.Centroid.Lat,
		"longitude":          p.Centroid.Lon,
		"geofenceId":         p.ID,
		"geofenceEvent":      p.Kind.String(),
	}

	return msg
}
