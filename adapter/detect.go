package adapter

import (
	"sort"

	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/registry"
)

// Classification of a fetched fence against the cache.
type Classification int

const (
	ClassUnchanged Classification = iota
	ClassNew
	ClassModified
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassModified:
		return "modified"
	default:
		return "unchanged"
	}
}

// Classify compares versions. regressed is set when the registry reports an
// older version than the one cached; the fence is still ClassUnchanged.
func Classify(fetched *registry.Fence, cached *cache.Fence) (c Classification, regressed bool) {
	switch {
	case cached == nil:
		return ClassNew, false
	case fetched.Version.After(cached.Version):
		return ClassModified, false
	case fetched.Version.Before(cached.Version):
		return ClassUnchanged, true
	default:
		return ClassUnchanged, false
	}
}

// IDSet is a set of registry object ids.
type IDSet map[int64]struct{}

func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s IDSet) Add(id int64) { s[id] = struct{}{} }

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// DetectDeletions returns the cached ids that were not fetched, ascending.
// fetched must come from a complete snapshot.
func DetectDeletions(fetched, cached IDSet) []int64 {
	var gone []int64
	for id := range cached {
		if !fetched.Has(id) {
			gone = append(gone, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	return gone
}
