// Package buildinfo exposes the version metadata stamped into the
// binary at link time. The release build passes -ldflags to set these;
// a plain `go build` reports the dev defaults.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Set via -ldflags, e.g.
// -X .../internal/buildinfo.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info returns build and runtime metadata for the version command and
// the health endpoint.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// Uptime reports time elapsed since process start.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// UserAgent is the User-Agent value for outbound HTTP requests, so
// upstream services can tell messengerd versions apart in their logs.
func UserAgent() string {
	return fmt.Sprintf("messengerd/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String returns the one-line startup banner form.
func String() string {
	return fmt.Sprintf("messengerd %s (%s) built %s", Version, GitCommit, BuildTime)
}
