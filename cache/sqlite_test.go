package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NPRA/geofence-converter/geom"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "database.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testFence(id int64, version string) *Fence {
	v, _ := time.ParseInLocation(VersionLayout, version, time.UTC)
	return &Fence{
		ID:       id,
		Name:     "Geofence",
		Version:  v,
		Polygon:  "POLYGON ((0 0, 10 0, 10 10, 0 10))",
		Centroid: &geom.Point{X: 5, Y: 5},
	}
}

func TestSQLite_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	f, err := s.Find(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, s.Insert(ctx, testFence(1, "2020-01-01 00:00:00")))
	assert.Error(t, s.Insert(ctx, testFence(1, "2020-01-01 00:00:00")), "duplicate ids are rejected")

	f, err = s.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, testFence(1, "2020-01-01 00:00:00"), f)

	updated := testFence(1, "2020-02-01 00:00:00")
	updated.Polygon = "POLYGON ((0 0, 20 0, 20 20, 0 20))"
	updated.Centroid = &geom.Point{X: 10, Y: 10}
	require.NoError(t, s.Update(ctx, updated))

	f, err = s.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, updated, f)

	require.NoError(t, s.Delete(ctx, 1))
	f, err = s.Find(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSQLite_MissingRows(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	err := s.Update(ctx, testFence(5, "2020-01-01 00:00:00"))
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	err = s.Delete(ctx, 5)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestSQLite_All(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	noCentroid := testFence(2, "2020-01-01 00:00:00")
	noCentroid.Centroid = nil
	require.NoError(t, s.Insert(ctx, testFence(3, "2020-01-01 00:00:00")))
	require.NoError(t, s.Insert(ctx, noCentroid))
	require.NoError(t, s.Insert(ctx, testFence(1, "2020-01-01 00:00:00")))

	all, err := s.All(ctx)

	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
	assert.Nil(t, all[1].Centroid)
	assert.Equal(t, int64(3), all[2].ID)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "database.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, testFence(42, "2021-05-01 10:00:00")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	f, err := s.Find(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "2021-05-01 10:00:00", formatVersion(f.Version))
}

func TestFence_Ring(t *testing.T) {
	ring, err := testFence(1, "2020-01-01 00:00:00").Ring()

	require.NoError(t, err)
	assert.Len(t, ring, 4)
}
