// Package s3 archives delivered documents in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/NPRA/geofence-converter/datex"
)

// ObjectStorage keeps a copy of documents.
type ObjectStorage interface {
	Archive(ctx context.Context, doc *datex.Document) (string, error)
}

// ObjectStorageImpl is our implementation of the ObjectStorage interface.
type ObjectStorageImpl struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

var _ ObjectStorage = (*ObjectStorageImpl)(nil)

// New returns an ObjectStorageImpl writing under destination, e.g.
// s3://bucket/prefix.
func New(sess *session.Session, destination string) (*ObjectStorageImpl, error) {
	return NewWithClient(s3.New(sess), destination)
}

// NewWithClient is like New but takes a client.
func NewWithClient(client s3iface.S3API, destination string) (*ObjectStorageImpl, error) {
	bucket, prefix, err := getBucketAndKey(destination)
	if err != nil {
		return nil, err
	}
	return &ObjectStorageImpl{
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// Archive uploads the document and returns its URI.
func (s *ObjectStorageImpl) Archive(ctx context.Context, doc *datex.Document) (string, error) {
	key := Key(s.prefix, doc.Payload)
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc.Body),
		ContentType: aws.String(datex.ContentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "geofence %d: error uploading document", doc.Payload.ID)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Key is <prefix>/<id>/<epoch>-<kind>.xml.
func Key(prefix string, p *datex.Payload) string {
	name := strconv.FormatInt(p.Epoch(), 10) + "-" + p.Kind.String() + ".xml"
	return path.Join(prefix, strconv.FormatInt(p.ID, 10), name)
}

func getBucketAndKey(URI string) (bucket string, key string, err error) {
	u, err := url.Parse(URI)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", "", errors.New("bucket is missing")
	}
	return u.Hostname(), strings.Trim(u.Path, "/"), nil
}
