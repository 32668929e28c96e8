package registry

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// DefaultObjectType is the registry type of geofence objects.
	DefaultObjectType = 911

	// DefaultTimeout bounds every registry request.
	DefaultTimeout = 2 * time.Second

	mediaTypeJSON = "application/json"
)

//go:embed schema/collection.json
var collectionSchema string

var collectionSchemaLoader = gojsonschema.NewStringLoader(collectionSchema)

// Query holds the query string parameters sent with every listing request.
type Query struct {
	Segmentation bool   `schema:"segmentering"`
	Include      string `schema:"inkluder,omitempty"`
	BoundingBox  string `schema:"kartutsnitt,omitempty"`
	PageSize     int    `schema:"antall,omitempty"`
}

// DefaultQuery mirrors the listing used in production: segmented objects with
// location, properties and metadata inside the national bounding box.
var DefaultQuery = Query{
	Segmentation: true,
	Include:      "lokasjon,egenskaper,metadata",
	BoundingBox:  "-621912,6250000,1821912,8189887",
}

// Snapshot is the result of listing every object of the configured type.
type Snapshot struct {
	Objects  []Object
	Returned int

	// Partial is set when pagination stopped before the registry ran out of
	// pages. A partial snapshot cannot be used to detect deletions.
	Partial bool
}

// FetchError wraps any failure while listing objects.
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error (%s): %v", e.Stage, e.Err)
}

func (e *FetchError) Cause() error  { return e.Err }
func (e *FetchError) Unwrap() error { return e.Err }

type collection struct {
	Objects  []Object           `json:"objekter"`
	Metadata collectionMetadata `json:"metadata"`
}

type collectionMetadata struct {
	Count    int   `json:"antall"`
	Returned int   `json:"returnert"`
	PageSize int   `json:"sidestørrelse"`
	Next     *next `json:"neste"`
}

type next struct {
	Start string `json:"start"`
	Href  string `json:"href"`
}

// Client lists road objects from the registry REST API.
type Client struct {
	BaseURL    *url.URL
	ObjectType int

	client    *http.Client
	logger    logrus.FieldLogger
	query     Query
	userAgent string
	maxPages  int
	retries   uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// SetQuery replaces DefaultQuery.
func SetQuery(q Query) ClientOption {
	return func(c *Client) error {
		c.query = q
		return nil
	}
}

// SetMaxPages limits how many pages a single Fetch follows. Zero means no
// limit.
func SetMaxPages(n int) ClientOption {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("max pages cannot be negative")
		}
		c.maxPages = n
		return nil
	}
}

// SetRetries sets how many times a page request is retried on transient
// failures.
func SetRetries(n uint64) ClientOption {
	return func(c *Client) error {
		c.retries = n
		return nil
	}
}

// SetUserAgent sets the User-Agent and X-Client headers.
func SetUserAgent(ua string) ClientOption {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// SetLogger sets the logger used to report retries.
func SetLogger(logger logrus.FieldLogger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// NewHTTPClient returns a HTTP client where the whole exchange, dial and TLS
// handshake included, is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout: timeout,
		},
	}
}

// New returns a registry client. A nil httpClient is replaced by one using
// DefaultTimeout.
func New(httpClient *http.Client, baseURL string, objectType int, options ...ClientOption) (*Client, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "error processing registry URL (%q)", baseURL)
	}
	if objectType <= 0 {
		objectType = DefaultObjectType
	}
	c := &Client{
		BaseURL:    u,
		ObjectType: objectType,
		client:     httpClient,
		logger:     logrus.StandardLogger(),
		query:      DefaultQuery,
		userAgent:  "geofence-converter",
		retries:    2,
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// listURL builds the address of the first page.
func (c *Client) listURL() (string, error) {
	values := url.Values{}
	if err := schema.NewEncoder().Encode(c.query, values); err != nil {
		return "", errors.Wrap(err, "error encoding query")
	}
	rel := &url.URL{
		Path:     fmt.Sprintf("vegobjekter/%d", c.ObjectType),
		RawQuery: values.Encode(),
	}
	return c.BaseURL.ResolveReference(rel).String(), nil
}

// Fetch lists every object of the configured type, following pagination
// links until the registry runs out of pages. Any page failure fails the
// whole fetch.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	addr, err := c.listURL()
	if err != nil {
		return nil, &FetchError{Stage: "query", Err: err}
	}

	snap := &Snapshot{}
	visited := map[string]bool{}
	for pages := 1; ; pages++ {
		visited[addr] = true
		coll, err := c.page(ctx, addr)
		if err != nil {
			return nil, err
		}
		snap.Objects = append(snap.Objects, coll.Objects...)
		snap.Returned += coll.Metadata.Returned

		addr = c.nextPage(coll)
		if addr == "" {
			break
		}
		if visited[addr] {
			c.logger.WithField("href", addr).Warn("Registry pagination points back to a visited page")
			snap.Partial = true
			break
		}
		if c.maxPages > 0 && pages >= c.maxPages {
			c.logger.WithField("pages", pages).Warn("Registry pagination limit reached")
			snap.Partial = true
			break
		}
	}

	return snap, nil
}

// nextPage returns the address of the following page or an empty string when
// the collection is exhausted.
func (c *Client) nextPage(coll *collection) string {
	md := coll.Metadata
	if md.Next == nil || md.Next.Href == "" || md.Returned == 0 {
		return ""
	}
	pageSize := md.PageSize
	if pageSize == 0 {
		pageSize = c.query.PageSize
	}
	if pageSize > 0 && md.Returned < pageSize {
		return ""
	}
	return md.Next.Href
}

// page retrieves, validates and decodes a single page.
func (c *Client) page(ctx context.Context, addr string) (*collection, error) {
	blob, err := c.request(ctx, addr)
	if err != nil {
		return nil, &FetchError{Stage: "request", Err: err}
	}
	return decode(blob)
}

// Decode validates and decodes a single listing document, e.g. one saved
// from the API. The snapshot is never partial.
func Decode(blob []byte) (*Snapshot, error) {
	coll, err := decode(blob)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Objects: coll.Objects, Returned: coll.Metadata.Returned}, nil
}

func decode(blob []byte) (*collection, error) {
	result, err := gojsonschema.Validate(collectionSchemaLoader, gojsonschema.NewBytesLoader(blob))
	if err != nil {
		return nil, &FetchError{Stage: "decode", Err: err}
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			issues = append(issues, issue.String())
		}
		return nil, &FetchError{Stage: "validate", Err: errors.Errorf("unexpected document: %s", strings.Join(issues, "; "))}
	}

	coll := &collection{}
	if err := json.NewDecoder(bytes.NewReader(blob)).Decode(coll); err != nil {
		return nil, &FetchError{Stage: "decode", Err: err}
	}
	return coll, nil
}

// request delivers the HTTP request with exponential backoff and returns the
// response body.
func (c *Client) request(ctx context.Context, addr string) ([]byte, error) {
	var backoffStrategy = backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ExponentialBackOff{
			InitialInterval:     200 * time.Millisecond,
			RandomizationFactor: 0.5,
			Multiplier:          2,
			MaxInterval:         2 * time.Second,
			MaxElapsedTime:      10 * time.Second,
			Clock:               backoff.SystemClock,
		}, c.retries),
		ctx)

	var blob []byte
	err := backoff.RetryNotify(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
			if err != nil {
				return backoff.Permanent(errors.Wrap(err, "error creating request"))
			}
			req.Header.Add("Accept", mediaTypeJSON)
			req.Header.Add("User-Agent", c.userAgent)
			req.Header.Add("X-Client", c.userAgent)

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			// Give up right away on client errors.
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return backoff.Permanent(errors.Errorf("%s (client error)", http.StatusText(resp.StatusCode)))
			case resp.StatusCode >= 500:
				return errors.Errorf("%s (server error)", http.StatusText(resp.StatusCode))
			case resp.StatusCode != http.StatusOK:
				return backoff.Permanent(errors.Errorf("unexpected response status %d", resp.StatusCode))
			}

			blob, err = ioutil.ReadAll(resp.Body)
			return err
		},
		backoffStrategy,
		func(err error, d time.Duration) {
			c.logger.WithFields(logrus.Fields{"err": err, "wait": d}).Debug("Registry request failed, retrying")
		},
	)

	return blob, err
}
