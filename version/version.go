// Package version holds the build version, set with -ldflags at release time.
package version

import "runtime"

// VERSION is overridden with -X github.com/NPRA/geofence-converter/version.VERSION=...
var VERSION = "dev"

// AppVersion is the version string used in logs and the User-Agent header.
func AppVersion() string {
	return "geofence-converter/" + VERSION + " (" + runtime.Version() + ")"
}
