package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/registry"
)

func TestClassify(t *testing.T) {
	older := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	tests := map[string]struct {
		fetched   time.Time
		cached    *cache.Fence
		want      Classification
		regressed bool
	}{
		"not cached": {
			fetched: older,
			want:    ClassNew,
		},
		"newer version": {
			fetched: newer,
			cached:  &cache.Fence{ID: 1, Version: older},
			want:    ClassModified,
		},
		"same version": {
			fetched: older,
			cached:  &cache.Fence{ID: 1, Version: older},
			want:    ClassUnchanged,
		},
		"older version": {
			fetched:   older,
			cached:    &cache.Fence{ID: 1, Version: newer},
			want:      ClassUnchanged,
			regressed: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, regressed := Classify(&registry.Fence{ID: 1, Version: tc.fetched}, tc.cached)
			assert.Equal(t, tc.want, c)
			assert.Equal(t, tc.regressed, regressed)
		})
	}
}

func TestClassification_String(t *testing.T) {
	assert.Equal(t, "new", ClassNew.String())
	assert.Equal(t, "modified", ClassModified.String())
	assert.Equal(t, "unchanged", ClassUnchanged.String())
}

func TestDetectDeletions(t *testing.T) {
	assert.Equal(t, []int64{2}, DetectDeletions(NewIDSet(1, 3), NewIDSet(1, 2, 3)))
	assert.Equal(t, []int64{1, 5, 9}, DetectDeletions(NewIDSet(), NewIDSet(9, 1, 5)))
	assert.Empty(t, DetectDeletions(NewIDSet(1, 2, 3, 4), NewIDSet(1, 2)))
	assert.Empty(t, DetectDeletions(NewIDSet(1), NewIDSet()))
}

func TestIDSet(t *testing.T) {
	s := NewIDSet(1, 2)
	s.Add(3)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(4))
	assert.Len(t, s, 3)
}
