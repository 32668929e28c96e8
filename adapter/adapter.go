package adapter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NPRA/geofence-converter/broker"
	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/datex"
	"github.com/NPRA/geofence-converter/geom"
	"github.com/NPRA/geofence-converter/registry"
	"github.com/NPRA/geofence-converter/s3"
)

const (
	DefaultInterval       = 300 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

// Fetcher lists the registry objects.
type Fetcher interface {
	Fetch(ctx context.Context) (*registry.Snapshot, error)
}

// Sink delivers documents. Send returns a *broker.ConnectionError when the
// link is gone; Connect restores it.
type Sink interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, doc *datex.Document) error
}

var (
	_ Fetcher = (*registry.Client)(nil)
	_ Sink    = (*broker.Interchange)(nil)
)

// Config of the reconciliation loop.
type Config struct {
	Interval       time.Duration
	ReconnectDelay time.Duration
	Projection     geom.Projection
}

// Report summarizes one cycle.
type Report struct {
	Fetched   int
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Skipped   int
	Partial   bool
}

// Adapter is the core of the converter.
//
// Every cycle lists the geofences in the registry, compares them with the
// local cache, delivers a DATEX II document for each new, modified or
// deleted fence and records the outcome in the cache. The cache is only
// touched after a successful delivery, so anything that fails is retried
// on the next cycle.
type Adapter struct {
	logger    logrus.FieldLogger
	fetcher   Fetcher
	sink      Sink
	store     cache.Store
	archive   s3.ObjectStorage
	metrics   *Metrics
	config    Config
	assembler Assembler
	now       func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	stop    chan chan struct{}
}

// New returns an Adapter. archive is optional.
func New(
	logger logrus.FieldLogger,
	fetcher Fetcher,
	sink Sink,
	store cache.Store,
	archive s3.ObjectStorage,
	metrics *Metrics,
	config Config) *Adapter {

	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.Projection.Zone == 0 {
		config.Projection = geom.DefaultProjection
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	a := &Adapter{
		logger:    logger,
		fetcher:   fetcher,
		sink:      sink,
		store:     store,
		archive:   archive,
		metrics:   metrics,
		config:    config,
		assembler: Assembler{Projection: config.Projection},
		now:       time.Now,
		trigger:   make(chan struct{}),
		stop:      make(chan chan struct{}),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	return a
}

// Run executes cycles until Stop is called. The first cycle starts
// immediately.
func (a *Adapter) Run() {
	for {
		if _, err := a.Cycle(a.ctx); err != nil && a.ctx.Err() == nil {
			a.logger.WithError(err).Error("Cycle failed")
		}

		select {
		case ch := <-a.stop:
			close(ch)
			return
		case <-a.trigger:
			a.logger.Info("Cycle requested")
		case <-time.After(a.config.Interval):
		}
	}
}

// Stop cancels the current cycle and blocks until Run returns.
func (a *Adapter) Stop() {
	a.cancel()
	ch := make(chan struct{})
	a.stop <- ch
	<-ch
}

// Trigger requests an immediate cycle. It is ignored while a cycle is
// running.
func (a *Adapter) Trigger() bool {
	select {
	case a.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Cycle runs a single reconciliation pass. The returned error is only set
// when the cycle could not run at all.
func (a *Adapter) Cycle(ctx context.Context) (*Report, error) {
	a.metrics.Cycles.Inc()
	report := &Report{}

	snapshot, err := a.fetcher.Fetch(ctx)
	if err != nil {
		a.metrics.FetchFailures.Inc()
		return report, errors.Wrap(err, "fetch")
	}
	report.Fetched = len(snapshot.Objects)
	report.Partial = snapshot.Partial
	a.metrics.Fetched.Add(float64(report.Fetched))

	if snapshot.Returned == 0 {
		a.logger.Debug("Registry returned no objects, nothing to do")
		return report, nil
	}

	seen := make(IDSet, len(snapshot.Objects))
	for i := range snapshot.Objects {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		obj := &snapshot.Objects[i]
		seen.Add(obj.ID)
		if err := a.reconcile(ctx, obj, report); err != nil {
			return report, err
		}
	}

	if snapshot.Partial {
		a.logger.Warn("Registry snapshot is incomplete, deletion detection skipped")
		return report, nil
	}

	if err := a.sweep(ctx, seen, report); err != nil {
		return report, err
	}

	a.logger.WithFields(logrus.Fields{
		"fetched":   report.Fetched,
		"created":   report.Created,
		"updated":   report.Updated,
		"deleted":   report.Deleted,
		"unchanged": report.Unchanged,
		"skipped":   report.Skipped,
	}).Info("Cycle completed")

	return report, nil
}

// reconcile handles one fetched object. Only cancellation is returned, any
// other failure skips the object.
func (a *Adapter) reconcile(ctx context.Context, obj *registry.Object, report *Report) error {
	logger := a.logger.WithField("id", obj.ID)

	fence, err := registry.Normalize(obj)
	if err != nil {
		a.skip(logger, report, "normalize", err)
		return nil
	}

	row, err := a.store.Find(ctx, fence.ID)
	if err != nil {
		a.skip(logger, report, "cache", err)
		return ctx.Err()
	}

	class, regressed := Classify(fence, row)
	if regressed {
		a.metrics.Regressions.Inc()
		logger.WithFields(logrus.Fields{
			"fetched": registry.FormatTimestamp(fence.Version),
			"cached":  registry.FormatTimestamp(row.Version),
		}).Warn("Registry version is older than the cached one")
	}
	if class == ClassUnchanged {
		report.Unchanged++
		return nil
	}

	kind := datex.KindCreate
	if class == ClassModified {
		kind = datex.KindUpdate
	}
	payload, centroid, err := a.assembler.Assemble(fence, kind)
	if err != nil {
		a.skip(logger, report, "assemble", err)
		return nil
	}

	if err := a.deliver(ctx, logger, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.skip(logger, report, "send", err)
		return nil
	}

	updated := &cache.Fence{
		ID:       fence.ID,
		Name:     fence.Name,
		Version:  fence.Version,
		Polygon:  fence.Raw,
		Centroid: &centroid,
	}
	if class == ClassNew {
		err = a.store.Insert(ctx, updated)
	} else {
		err = a.store.Update(ctx, updated)
	}
	if err != nil {
		logger.WithField("stage", "cache").WithError(err).Error("Document delivered but the cache could not be updated")
		return nil
	}
	if class == ClassNew {
		report.Created++
	} else {
		report.Updated++
	}
	logger.WithFields(logrus.Fields{"event": kind.String(), "name": fence.Name}).Info("Geofence delivered")

	return nil
}

// sweep emits deletions for every cached fence missing from the snapshot.
func (a *Adapter) sweep(ctx context.Context, seen IDSet, report *Report) error {
	rows, err := a.store.All(ctx)
	if err != nil {
		a.logger.WithField("stage", "cache").WithError(err).Error("Cannot list cached fences, deletion detection skipped")
		return ctx.Err()
	}

	cached := make(IDSet, len(rows))
	byID := make(map[int64]*cache.Fence, len(rows))
	for _, row := range rows {
		cached.Add(row.ID)
		byID[row.ID] = row
	}

	remaining := len(rows)
	for _, id := range DetectDeletions(seen, cached) {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := a.logger.WithField("id", id)
		row := byID[id]

		payload, err := a.assembler.AssembleDeleted(row)
		if err != nil {
			a.skip(logger, report, "assemble", err)
			continue
		}
		if err := a.deliver(ctx, logger, payload); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.skip(logger, report, "send", err)
			continue
		}
		if err := a.store.Delete(ctx, id); err != nil {
			logger.WithField("stage", "cache").WithError(err).Error("Document delivered but the cache could not be updated")
			continue
		}
		remaining--
		report.Deleted++
		logger.WithField("name", row.Name).Warn("Geofence removed from the registry")
	}
	a.metrics.Cached.Set(float64(remaining))

	return nil
}

// deliver renders and sends the payload. While the interchange is
// unreachable the link is re-established and the same document sent again,
// waiting ReconnectDelay before every attempt. Only cancellation ends the
// retries.
func (a *Adapter) deliver(ctx context.Context, logger logrus.FieldLogger, payload *datex.Payload) error {
	doc, err := datex.NewDocument(payload, a.now())
	if err != nil {
		return err
	}

	b := backoff.NewConstantBackOff(a.config.ReconnectDelay)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, b.NextBackOff()); err != nil {
				return err
			}
			a.metrics.Reconnects.Inc()
			if err := a.sink.Connect(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.WithError(err).WithField("retry", a.config.ReconnectDelay).Warn("Reconnect failed")
				continue
			}
			logger.Info("Reconnected to the interchange")
		}

		err := a.sink.Send(ctx, doc)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !broker.IsConnectionError(err) {
			return err
		}
		logger.WithError(err).Warn("Interchange connection lost, reconnecting")
	}

	a.metrics.Sent.WithLabelValues(payload.Kind.String()).Inc()
	a.archiveDocument(ctx, logger, doc)

	return nil
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// archiveDocument keeps a copy of the document when an archive is configured.
// Failures are only logged.
func (a *Adapter) archiveDocument(ctx context.Context, logger logrus.FieldLogger, doc *datex.Document) {
	if a.archive == nil {
		return
	}
	uri, err := a.archive.Archive(ctx, doc)
	if err != nil {
		logger.WithField("stage", "archive").WithError(err).Warn("Document could not be archived")
		return
	}
	logger.WithField("uri", uri).Debug("Document archived")
}

func (a *Adapter) skip(logger logrus.FieldLogger, report *Report, stage string, err error) {
	report.Skipped++
	reason := skipReason(stage, err)
	a.metrics.Skipped.WithLabelValues(reason).Inc()
	logger.WithFields(logrus.Fields{"stage": stage, "reason": reason}).WithError(err).Warn("Geofence skipped")
}

func skipReason(stage string, err error) string {
	var (
		validationErr *registry.ValidationError
		parseErr      *geom.ParseError
		geometryErr   *geom.GeometryError
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &geometryErr):
		return "geometry"
	default:
		return stage
	}
}
