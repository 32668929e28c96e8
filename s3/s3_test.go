package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NPRA/geofence-converter/datex"
	"github.com/NPRA/geofence-converter/geom"
)

type recorder struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
	status int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	blob, _ := io.ReadAll(req.Body)
	r.method, r.path, r.body = req.Method, req.URL.Path, string(blob)
	if r.status != 0 {
		w.WriteHeader(r.status)
		return
	}
	w.Header().Set("ETag", `"etag"`)
}

func testSession(t *testing.T, endpoint string) *session.Session {
	t.Helper()
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(endpoint),
		Region:           aws.String("eu-north-1"),
		Credentials:      credentials.NewStaticCredentials("id", "secret", ""),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(true),
		MaxRetries:       aws.Int(0),
	})
	require.NoError(t, err)
	return sess
}

func testDocument() *datex.Document {
	return &datex.Document{
		Payload: &datex.Payload{
			ID:      42,
			Version: time.Unix(1619863200, 0),
			Polygon: []geom.LatLon{{Lat: 1, Lon: 1}},
			Kind:    datex.KindDelete,
		},
		Body: []byte("<payloadPublication/>"),
	}
}

func TestObjectStorageImpl_Archive(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	store, err := New(testSession(t, srv.URL), "s3://archive/geofences/")
	require.NoError(t, err)

	uri, err := store.Archive(context.Background(), testDocument())

	require.NoError(t, err)
	assert.Equal(t, "s3://archive/geofences/42/1619863200-delete.xml", uri)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/archive/geofences/42/1619863200-delete.xml", rec.path)
	assert.Equal(t, "<payloadPublication/>", rec.body)
}

func TestObjectStorageImpl_ArchiveFailure(t *testing.T) {
	rec := &recorder{status: http.StatusForbidden}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	store, err := New(testSession(t, srv.URL), "s3://archive")
	require.NoError(t, err)

	_, err = store.Archive(context.Background(), testDocument())

	assert.Error(t, err)
}

func TestGetBucketAndKey(t *testing.T) {
	tests := map[string]struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		"bucket only":    {uri: "s3://archive", bucket: "archive"},
		"with prefix":    {uri: "s3://archive/a/b/", bucket: "archive", key: "a/b"},
		"invalid url":    {uri: "[invalid-url]:12345", wantErr: true},
		"wrong scheme":   {uri: "https://archive/a", wantErr: true},
		"missing bucket": {uri: "s3:///a", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			bucket, key, err := getBucketAndKey(tc.uri)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.key, key)
		})
	}
}

func TestKey(t *testing.T) {
	p := testDocument().Payload
	assert.Equal(t, "42/1619863200-delete.xml", Key("", p))
	p.Kind = datex.KindCreate
	assert.Equal(t, "x/42/1619863200-create.xml", Key("x", p))
}
