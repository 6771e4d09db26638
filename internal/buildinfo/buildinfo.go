// Package buildinfo carries version stamps injected at link time.
package buildinfo

import (
	"runtime"
	"time"
)

// Set via -ldflags at build time
var (
	Version    = "dev"
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC()

// Info is the build and process identity reported by /health and /api/status
type Info struct {
	Version    string `json:"version"`
	BuildTime  string `json:"build_time,omitempty"`
	CommitHash string `json:"commit,omitempty"`
	GoVersion  string `json:"go_version"`
	StartedAt  string `json:"started_at"`
	Uptime     string `json:"uptime"`
}

// Get returns the current build info
func Get() Info {
	return Info{
		Version:    Version,
		BuildTime:  BuildTime,
		CommitHash: CommitHash,
		GoVersion:  runtime.Version(),
		StartedAt:  StartTime.Format(time.RFC3339),
		Uptime:     time.Since(StartTime).Truncate(time.Second).String(),
	}
}
