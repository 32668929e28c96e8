package adapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/geom"
)

// LogCache writes every cached fence to the log.
func (a *Adapter) LogCache() {
	rows, err := a.store.All(a.ctx)
	if err != nil {
		a.logger.WithError(err).Error("Cannot list cached fences")
		return
	}
	a.metrics.Cached.Set(float64(len(rows)))
	for _, row := range rows {
		fields := logrus.Fields{
			"id":      row.ID,
			"name":    row.Name,
			"version": row.Version.UTC().Format(cache.VersionLayout),
		}
		if row.Centroid != nil {
			fields["centroid"] = geom.FormatPoint(*row.Centroid)
		}
		a.logger.WithFields(fields).Info("Cached geofence")
	}
	a.logger.WithField("count", len(rows)).Info("End of cache")
}

// BackfillCentroids computes the centroid of cached fences stored without
// one. It returns how many rows were repaired.
func (a *Adapter) BackfillCentroids(ctx context.Context) (int, error) {
	rows, err := a.store.All(ctx)
	if err != nil {
		return 0, err
	}
	var fixed int
	for _, row := range rows {
		if row.Centroid != nil {
			continue
		}
		logger := a.logger.WithField("id", row.ID)
		ring, err := row.Ring()
		if err != nil {
			logger.WithError(err).Warn("Cached polygon cannot be parsed")
			continue
		}
		centroid, err := geom.Centroid(ring)
		if err != nil {
			logger.WithError(err).Warn("Cached polygon has no centroid")
			continue
		}
		row.Centroid = &centroid
		if err := a.store.Update(ctx, row); err != nil {
			return fixed, err
		}
		fixed++
	}
	if fixed > 0 {
		a.logger.WithField("count", fixed).Info("Centroids computed for cached geofences")
	}
	return fixed, nil
}
