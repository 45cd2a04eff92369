// Package version exposes build metadata injected with -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/hydrocred/hydrocred/internal/version.version=v1.2.0 \
//	  -X github.com/hydrocred/hydrocred/internal/version.gitCommit=$(git rev-parse --short HEAD) \
//	  -X github.com/hydrocred/hydrocred/internal/version.buildDate=$(date -u +%FT%TZ)"
package version

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// Info holds the build metadata for the running binary
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
}

// Get returns the build metadata for the running binary
func Get() Info {
	return Info{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
	}
}
